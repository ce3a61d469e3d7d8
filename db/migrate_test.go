package db

import (
	"strings"
	"testing"
)

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "postgres scheme",
			in:   "postgres://relay:pw@localhost:5432/relay?sslmode=disable",
			want: "pgx5://relay:pw@localhost:5432/relay?sslmode=disable",
		},
		{
			name: "postgresql scheme",
			in:   "postgresql://relay@db.internal/relay",
			want: "pgx5://relay@db.internal/relay",
		},
		{
			name: "scheme is case-insensitive",
			in:   "POSTGRES://localhost/relay",
			want: "pgx5://localhost/relay",
		},
		{
			name:    "mysql scheme rejected",
			in:      "mysql://localhost/relay",
			wantErr: true,
		},
		{
			name:    "missing scheme rejected",
			in:      "localhost:5432/relay",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := migrateURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("migrateURL(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("migrateURL(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	t.Parallel()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("reading embedded migrations: %v", err)
	}
	var ups, downs int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 {
		t.Fatal("no up migrations embedded")
	}
	if ups != downs {
		t.Errorf("embedded %d up migrations and %d down migrations, want matching pairs", ups, downs)
	}
}
