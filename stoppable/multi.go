////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Multi groups several Stoppable so they can be closed together.
type Multi struct {
	name       string
	stoppables []Stoppable
	mux        sync.RWMutex
	once       sync.Once
	closed     bool
}

// NewMulti returns an empty Multi.
func NewMulti(name string) *Multi {
	return &Multi{name: name}
}

// Name returns the name of the Multi followed by the names of its children.
func (m *Multi) Name() string {
	m.mux.RLock()
	defer m.mux.RUnlock()
	names := make([]string, 0, len(m.stoppables))
	for _, s := range m.stoppables {
		names = append(names, s.Name())
	}
	return m.name + ": {" + strings.Join(names, ", ") + "}"
}

// Add adds a Stoppable to the group.
func (m *Multi) Add(s Stoppable) {
	m.mux.Lock()
	m.stoppables = append(m.stoppables, s)
	m.mux.Unlock()
}

// IsRunning returns true until Close has been called.
func (m *Multi) IsRunning() bool {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return !m.closed
}

// Close closes every child concurrently and returns a combined error naming
// the children that failed.
func (m *Multi) Close(timeout time.Duration) error {
	var err error
	m.once.Do(func() {
		m.mux.Lock()
		m.closed = true
		children := make([]Stoppable, len(m.stoppables))
		copy(children, m.stoppables)
		m.mux.Unlock()

		var wg sync.WaitGroup
		var failMux sync.Mutex
		var failed []string
		for _, s := range children {
			wg.Add(1)
			go func(s Stoppable) {
				defer wg.Done()
				if closeErr := s.Close(timeout); closeErr != nil {
					failMux.Lock()
					failed = append(failed, s.Name())
					failMux.Unlock()
				}
			}(s)
		}
		wg.Wait()

		if len(failed) > 0 {
			err = errors.Errorf("MultiStopper %s failed to close %d/%d "+
				"stoppables: %s", m.name, len(failed), len(children),
				strings.Join(failed, ", "))
			jww.ERROR.Print(err.Error())
		}
	})
	return err
}
