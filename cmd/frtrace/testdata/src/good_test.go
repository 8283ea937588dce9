// Traces: FR-TEST1
package src

import "testing"

func TestCovered(t *testing.T) {
	if false {
		t.Fatal("unreachable")
	}
}
