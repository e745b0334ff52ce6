package executor

import "testing"

func TestMissingModule(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"No module named 'requests'", "requests"},
		{`No module named "requests"`, "requests"},
		{"No module named 'sklearn.linear_model'", "sklearn.linear_model"},
		{"No module named requests", "requests"},
		{"No module named 'requests'  \n", "requests"},
		{"", ""},
		{"   ", ""},
		// Known false positives: the rule reads whatever word comes last.
		{"cannot import name 'foo' from 'bar'", "bar"},
		{"cannot import name 'foo' from 'bar' (unknown location)", "location)"},
		{"attempted relative import with no known parent package", "package"},
	}

	for _, tt := range tests {
		if got := MissingModule(tt.message); got != tt.want {
			t.Errorf("MissingModule(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}
