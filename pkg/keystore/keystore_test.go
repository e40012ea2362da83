package keystore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesMissingStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "agent")
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err = s.SetToken("tok-1"); err != nil {
		t.Fatal(err)
	}
	if _, err = os.Stat(filepath.Join(dir, fileName)); err != nil {
		t.Errorf("store file not created: %v", err)
	}
}

func TestPersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Token(); ok {
		t.Fatal("fresh store must have no token")
	}
	if err = s.SetToken("tok-42"); err != nil {
		t.Fatal(err)
	}
	if err = s.SetServerURL("ws://ctl:8000/ws"); err != nil {
		t.Fatal(err)
	}
	if err = s.SetDeviceID("dev-1"); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if tok, ok := s2.Token(); !ok || tok != "tok-42" {
		t.Errorf("token = %q, %v", tok, ok)
	}
	if got := s2.ServerURL(); got != "ws://ctl:8000/ws" {
		t.Errorf("server url = %q", got)
	}
	if got := s2.DeviceID(); got != "dev-1" {
		t.Errorf("device id = %q", got)
	}
}

func TestClearWipesRegistration(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err = s.SetToken("tok"); err != nil {
		t.Fatal(err)
	}
	if err = s.Clear(); err != nil {
		t.Fatal(err)
	}
	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s2.Token(); ok {
		t.Error("token survived Clear")
	}
}
