////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package versioned

import (
	"bytes"
	"testing"
	"time"

	"gitlab.com/elixxir/ekv"
)

// Tests that an object written with Set can be read back with Get.
func TestKV_SetGet(t *testing.T) {
	vkv := NewKV(ekv.MakeMemstore())
	original := Object{
		Version:   1,
		Timestamp: time.Now(),
		Data:      []byte("credential"),
	}

	if err := vkv.Set("token", &original); err != nil {
		t.Fatalf("Set failed: %+v", err)
	}

	result, err := vkv.Get("token", 1)
	if err != nil {
		t.Fatalf("Get failed: %+v", err)
	}
	if !bytes.Equal(result.Data, original.Data) {
		t.Errorf("Unexpected data.\nexpected: %q\nreceived: %q",
			original.Data, result.Data)
	}

	if _, err = vkv.Get("token", 0); vkv.Exists(err) {
		t.Errorf("Get of another version should not find the object: %v", err)
	}
}

// Tests that Delete removes the object.
func TestKV_Delete(t *testing.T) {
	vkv := NewKV(ekv.MakeMemstore())
	if err := vkv.Set("marker", &Object{Data: []byte("3")}); err != nil {
		t.Fatalf("Set failed: %+v", err)
	}
	if err := vkv.Delete("marker", 0); err != nil {
		t.Fatalf("Delete failed: %+v", err)
	}
	if _, err := vkv.Get("marker", 0); vkv.Exists(err) {
		t.Errorf("Object still exists after Delete: %v", err)
	}
}

// Tests that prefixed stores do not see each other's keys.
func TestKV_Prefix(t *testing.T) {
	base := NewKV(ekv.MakeMemstore())
	a, b := base.Prefix("a"), base.Prefix("b")

	if err := a.Set("key", &Object{Data: []byte("a")}); err != nil {
		t.Fatalf("Set failed: %+v", err)
	}
	if _, err := b.Get("key", 0); b.Exists(err) {
		t.Errorf("Prefix b can read key written under prefix a")
	}
	if full := a.Prefix("c").fullKey("key", 2); full != "a/c/key_2" {
		t.Errorf("Unexpected full key %q", full)
	}
}

// Tests that Write stamps the object with its version and a write time.
func TestKV_Write(t *testing.T) {
	vkv := NewKV(ekv.MakeMemstore())
	before := time.Now().Add(-time.Minute)
	if err := vkv.Write("summary", 3, []byte("{}")); err != nil {
		t.Fatalf("Write failed: %+v", err)
	}

	obj, err := vkv.Get("summary", 3)
	if err != nil {
		t.Fatalf("Get failed: %+v", err)
	}
	if obj.Version != 3 || string(obj.Data) != "{}" {
		t.Errorf("Unexpected object: %+v", obj)
	}
	if obj.Timestamp.Before(before) {
		t.Errorf("Timestamp %s not set on write", obj.Timestamp)
	}
}
