// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"renkei/internal/renkei"
)

// MotorEntry is one saved motor controller
type MotorEntry struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the entry's host:port dial target
func (e MotorEntry) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// storeFile is the on-disk layout of the saved-motor file
type storeFile struct {
	LastUsed string       `yaml:"last_used,omitempty"`
	Motors   []MotorEntry `yaml:"motors"`
}

// Store persists saved motors and the most recently used address for the
// interactive interface
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStorePath returns the per-user saved-motor file location
func DefaultStorePath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "motors.yaml"
	}
	return filepath.Join(base, "renkei", "motors.yaml")
}

// Path returns the store's file path
func (s *Store) Path() string {
	return s.path
}

// load reads the store file. A missing file is an empty store.
func (s *Store) load() (*storeFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &storeFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read motor store: %w", err)
	}

	var file storeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse motor store: %w", err)
	}
	return &file, nil
}

func (s *Store) save(file *storeFile) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal motor store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write motor store: %w", err)
	}
	return nil
}

// List returns all saved motors
func (s *Store) List() ([]MotorEntry, error) {
	file, err := s.load()
	if err != nil {
		return nil, err
	}
	return file.Motors, nil
}

// Get returns the saved motor with the given name
func (s *Store) Get(name string) (*MotorEntry, error) {
	file, err := s.load()
	if err != nil {
		return nil, err
	}

	for _, entry := range file.Motors {
		if entry.Name == name {
			return &entry, nil
		}
	}
	return nil, fmt.Errorf("no saved motor named '%s'", name)
}

// Exists reports whether a motor with the given name is saved
func (s *Store) Exists(name string) bool {
	_, err := s.Get(name)
	return err == nil
}

// Add saves a new motor. Names must be unique.
func (s *Store) Add(entry MotorEntry) error {
	if err := validateEntry(&entry); err != nil {
		return err
	}

	file, err := s.load()
	if err != nil {
		return err
	}

	for _, existing := range file.Motors {
		if existing.Name == entry.Name {
			return fmt.Errorf("a motor named '%s' already exists", entry.Name)
		}
	}

	file.Motors = append(file.Motors, entry)
	return s.save(file)
}

// Update replaces the saved motor with the given name. The entry may carry
// a new name as long as it does not collide with another saved motor.
func (s *Store) Update(name string, entry MotorEntry) error {
	if err := validateEntry(&entry); err != nil {
		return err
	}

	file, err := s.load()
	if err != nil {
		return err
	}

	index := -1
	for i, existing := range file.Motors {
		if existing.Name == name {
			index = i
			continue
		}
		if existing.Name == entry.Name {
			return fmt.Errorf("a motor named '%s' already exists", entry.Name)
		}
	}
	if index < 0 {
		return fmt.Errorf("no saved motor named '%s'", name)
	}

	file.Motors[index] = entry
	return s.save(file)
}

// Remove deletes the saved motor with the given name
func (s *Store) Remove(name string) error {
	file, err := s.load()
	if err != nil {
		return err
	}

	for i, entry := range file.Motors {
		if entry.Name == name {
			file.Motors = append(file.Motors[:i], file.Motors[i+1:]...)
			return s.save(file)
		}
	}
	return fmt.Errorf("no saved motor named '%s'", name)
}

// RememberLast records the address of the most recent successful connection
func (s *Store) RememberLast(address string) error {
	file, err := s.load()
	if err != nil {
		return err
	}

	file.LastUsed = address
	return s.save(file)
}

// LastUsed returns the most recently used address, if one was recorded
func (s *Store) LastUsed() (string, bool) {
	file, err := s.load()
	if err != nil || file.LastUsed == "" {
		return "", false
	}
	return file.LastUsed, true
}

func validateEntry(entry *MotorEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("motor name is required")
	}
	if entry.Host == "" {
		return fmt.Errorf("motor host is required")
	}
	if entry.Port == 0 {
		entry.Port = renkei.DefaultPort
	}
	if entry.Port < 1 || entry.Port > 65535 {
		return fmt.Errorf("motor port must be 1-65535, got %d", entry.Port)
	}
	return nil
}
