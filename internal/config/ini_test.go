package config

import (
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	src := `
; comment
[eth0]
transport = udp
priority = 80
default = 1
ip = 10.0.0.1
port = 14311

[eth1]
transport = udp
interface = eth1
`
	specs, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(specs))
	}
	if specs[0].Name != "eth0" || specs[0].Transport != "udp" || specs[0].Priority != 80 || !specs[0].Default {
		t.Fatalf("unexpected first device: %+v", specs[0])
	}
	if specs[0].Params["ip"] != "10.0.0.1" || specs[0].Params["port"] != "14311" {
		t.Fatalf("unexpected params: %+v", specs[0].Params)
	}
	if specs[1].Default {
		t.Fatalf("only one device may be default")
	}
	if specs[1].Priority != 50 {
		t.Fatalf("expected default priority 50, got %d", specs[1].Priority)
	}
}

func TestParseMissingTransport(t *testing.T) {
	src := "[eth0]\npriority = 10\n"
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatal("expected error for missing transport key")
	}
}

func TestParseDuplicateDefault(t *testing.T) {
	src := "[a]\ntransport=udp\ndefault=1\n[b]\ntransport=udp\ndefault=1\n"
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatal("expected error for duplicate default device")
	}
}

func TestLoadNotFound(t *testing.T) {
	t.Setenv("CCI_CONFIG", "")
	if _, err := Load(); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
