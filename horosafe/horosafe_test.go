package horosafe

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret([]byte("short")); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
	if err := ValidateSecret(bytes.Repeat([]byte("a"), MinSecretLen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://93.184.216.34/logo.png", false},
		{"http://8.8.8.8/img.gif", false},
		{"ftp://evil.com/data", true},
		{"javascript:alert(1)", true},
		{"data:image/png;base64,AAAA", true},
		{"http://127.0.0.1/admin", true},
		{"http://localhost:8080/", true},
		{"http://10.0.0.1/internal", true},
		{"http://192.168.1.1/api", true},
		{"http://[::1]/api", true},
		{"http://172.16.0.1/secret", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http:///nohost", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestIsPrivateIP(t *testing.T) {
	if !IsPrivateIP(net.ParseIP("100.64.1.2")) {
		t.Error("CGNAT range should be private")
	}
	if IsPrivateIP(net.ParseIP("1.1.1.1")) {
		t.Error("1.1.1.1 should be public")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("exact limit: got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello!"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: expected ErrTooLarge, got %v", err)
	}
}
