package playback

import (
	"context"
	"io"
	"os"
	"sync"
)

// FileLoadable wraps an *os.File as a Loadable, demonstrating the
// ownership-transferring IntoLoadable conversion for local files: once
// constructed, the file is closed only when the Loadable is closed.
type FileLoadable struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileLoadable takes ownership of file.
func NewFileLoadable(file *os.File) *FileLoadable {
	return &FileLoadable{file: file}
}

// IntoFile is the IntoLoadable-style constructor: it converts an open file
// into a Loadable, transferring ownership.
func IntoFile(file *os.File) (Loadable, error) {
	return NewFileLoadable(file), nil
}

func (f *FileLoadable) Read(ctx context.Context, dst []byte) (ReadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.file.Read(dst)
	if err != nil {
		if err == io.EOF {
			return ReadResult{Kind: ReadEnd, Amount: n}, nil
		}
		return ReadResult{}, err
	}
	pos, posErr := f.file.Seek(0, io.SeekCurrent)
	info, statErr := f.file.Stat()
	if posErr == nil && statErr == nil && pos >= info.Size() {
		return ReadResult{Kind: ReadEnd, Amount: n}, nil
	}
	return ReadResult{Kind: ReadMore, Amount: n}, nil
}

func (f *FileLoadable) Length() *LoaderLength {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := f.file.Stat()
	if err != nil {
		return nil
	}
	return &LoaderLength{Kind: LoaderLengthBytes, Bytes: info.Size()}
}

func (f *FileLoadable) Seek(ctx context.Context, req SeekRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var whence int
	switch req.Whence {
	case SeekStart:
		whence = io.SeekStart
	case SeekCurrent:
		whence = io.SeekCurrent
	case SeekEnd:
		whence = io.SeekEnd
	}
	return f.file.Seek(req.Offset, whence)
}

func (f *FileLoadable) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
