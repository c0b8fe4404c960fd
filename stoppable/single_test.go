////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"testing"
	"time"
)

// Tests that NewSingle returns a running Single with the given name.
func TestNewSingle(t *testing.T) {
	name := "threadName"
	single := NewSingle(name)

	if single.Name() != name {
		t.Errorf("NewSingle returned Single with incorrect name."+
			"\nexpected: %s\nreceived: %s", name, single.Name())
	}

	if !single.IsRunning() {
		t.Errorf("NewSingle returned Single that is not running.")
	}
}

// Tests that Single.Close closes the quit channel and waits for ToStopped.
func TestSingle_Close(t *testing.T) {
	single := NewSingle("threadName")

	go func() {
		<-single.Quit()
		single.ToStopped()
	}()

	if err := single.Close(time.Second); err != nil {
		t.Fatalf("Close returned an error: %+v", err)
	}

	if !single.IsStopped() {
		t.Errorf("Single not stopped after Close: %s", single.GetStatus())
	}

	if err := single.Close(time.Second); err != nil {
		t.Errorf("Second Close returned an error: %+v", err)
	}
}

// Tests that Single.Close times out when the routine never stops.
func TestSingle_Close_Timeout(t *testing.T) {
	single := NewSingle("threadName")

	if err := single.Close(5 * time.Millisecond); err == nil {
		t.Errorf("Close did not time out.")
	}

	if single.GetStatus() != Stopping {
		t.Errorf("Unexpected status after timeout."+
			"\nexpected: %s\nreceived: %s", Stopping, single.GetStatus())
	}
}

// Unit test of Status.String.
func TestStatus_String(t *testing.T) {
	testValues := []struct {
		status   Status
		expected string
	}{
		{Running, "running"},
		{Stopping, "stopping"},
		{Stopped, "stopped"},
		{100, "INVALID STATUS: 100"},
	}

	for i, val := range testValues {
		if val.status.String() != val.expected {
			t.Errorf("String did not return the expected value (%d)."+
				"\nexpected: %s\nreceived: %s", i, val.expected, val.status)
		}
	}
}

// Tests that Multi.Close closes every child.
func TestMulti_Close(t *testing.T) {
	m := NewMulti("group")
	singles := []*Single{NewSingle("a"), NewSingle("b"), NewSingle("c")}
	for _, s := range singles {
		m.Add(s)
		go func(s *Single) {
			<-s.Quit()
			s.ToStopped()
		}(s)
	}

	if err := m.Close(time.Second); err != nil {
		t.Fatalf("Close returned an error: %+v", err)
	}

	for _, s := range singles {
		if !s.IsStopped() {
			t.Errorf("Child %s not stopped", s.Name())
		}
	}

	if m.IsRunning() {
		t.Errorf("Multi still running after Close.")
	}
}
