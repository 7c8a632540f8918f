package config

import (
	"github.com/spf13/afero"
)

type Fs struct {
	afero.Fs
	Config *AConfig
}

func (f *Fs) IsFile(path string) bool {
	s, err := f.Stat(path)
	return err == nil && !s.IsDir()
}

// IsReadable is true when path is a file that can be opened
func (f *Fs) IsReadable(path string) bool {
	if !f.IsFile(path) {
		return false
	}
	fh, err := f.Open(path)
	if err != nil {
		return false
	}
	fh.Close()
	return true
}

func (f *Fs) isDir(dir string) bool {
	s, err := f.Stat(dir)
	return err == nil && s.IsDir()
}
