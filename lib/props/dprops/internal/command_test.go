package internal

import (
	"testing"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name:     "Command with key and value",
			command:  Command{Type: CommandTSet, Key: "testkey", Value: "testvalue"},
			expected: 1 + 4 + 7 + 9,
		},
		{
			name:     "Command with empty key",
			command:  Command{Type: CommandTSet, Key: "", Value: "testvalue"},
			expected: 1 + 4 + 0 + 9,
		},
		{
			name:     "Delete without value",
			command:  Command{Type: CommandTDelete, Key: "testkey"},
			expected: 1 + 4 + 7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if size := tt.command.SizeBytes(); size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{"SetIfUnset with JSON value", Command{Type: CommandTSetIfUnset, Key: "LOCK_project_42", Value: `{"owner":"a@b.c"}`}},
		{"Delete", Command{Type: CommandTDelete, Key: "LOCK_project_42"}},
		{"Unicode key", Command{Type: CommandTSet, Key: "Ünïcødé", Value: "v"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()
			if len(data) != tt.command.SizeBytes() {
				t.Fatalf("serialized length %d, want %d", len(data), tt.command.SizeBytes())
			}

			var decoded Command
			if err := decoded.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if decoded != tt.command {
				t.Errorf("Deserialize() = %+v, want %+v", decoded, tt.command)
			}
		})
	}
}

// TestDeserializeErrors tests that truncated input is rejected
func TestDeserializeErrors(t *testing.T) {
	var c Command
	if err := c.Deserialize([]byte{0, 0}); err == nil {
		t.Error("expected error for data shorter than header")
	}

	full := (&Command{Type: CommandTSet, Key: "abcdef"}).Serialize()
	if err := c.Deserialize(full[:7]); err == nil {
		t.Error("expected error for truncated key")
	}
}
