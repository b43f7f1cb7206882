// Package checkpointer saves and restores agents with gob
package checkpointer

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpointer writes gob encoded checkpoints into a directory
type Checkpointer struct {
	dir string
}

// New returns a new Checkpointer saving into dir. The directory is
// created if it does not exist; an existing directory is not an
// error.
func New(dir string) (*Checkpointer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("new: could not create checkpoint "+
			"directory: %v", err)
	}
	return &Checkpointer{dir: dir}, nil
}

// Dir returns the checkpoint directory
func (c *Checkpointer) Dir() string {
	return c.dir
}

// Save gob encodes v into the named file, replacing any previous
// checkpoint of the same name
func (c *Checkpointer) Save(name string, v interface{}) error {
	path := filepath.Join(c.dir, name)
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("save: could not create checkpoint file: %v", err)
	}

	writer := bufio.NewWriter(file)
	if err := gob.NewEncoder(writer).Encode(v); err != nil {
		file.Close()
		return fmt.Errorf("save: could not encode checkpoint: %v", err)
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("save: could not flush checkpoint: %v", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("save: could not close checkpoint file: %v", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save: could not rename checkpoint: %v", err)
	}
	return nil
}

// Load gob decodes the named checkpoint into v
func (c *Checkpointer) Load(name string, v interface{}) error {
	path := filepath.Join(c.dir, name)
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load: could not open checkpoint file: %v", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(v); err != nil {
		return fmt.Errorf("load: could not decode checkpoint: %v", err)
	}
	return nil
}
