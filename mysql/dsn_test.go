package mysql

import "testing"

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Host: "127.0.0.1", Port: 3306, User: "root"}, false},
		{"missing host", Config{Port: 3306, User: "root"}, true},
		{"port out of range", Config{Host: "h", Port: 70000, User: "root"}, true},
		{"missing user", Config{Host: "h", Port: 3306}, true},
		{"local infile without handler", Config{Host: "h", Port: 3306, User: "root", AllowLocalInfile: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", User: "root"}.WithDefaults()
	if cfg.Port != defaultPort {
		t.Errorf("port = %d, want %d", cfg.Port, defaultPort)
	}
	if cfg.DialTimeout == 0 {
		t.Error("expected a non-zero default dial timeout")
	}
	if cfg.Charset == 0 {
		t.Error("expected a non-zero default charset")
	}
}

func TestConfigAddr(t *testing.T) {
	cfg := Config{Host: "db.internal", Port: 3307}
	if got := cfg.Addr(); got != "db.internal:3307" {
		t.Errorf("Addr() = %q", got)
	}
	zeroPort := Config{Host: "db.internal"}
	if got := zeroPort.Addr(); got != "db.internal:3306" {
		t.Errorf("Addr() with zero port = %q", got)
	}
}
