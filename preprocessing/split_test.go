package preprocessing

import "testing"

func TestSplitDeterminism(t *testing.T) {
	train1, test1 := Split(100, 42, 0.2)
	train2, test2 := Split(100, 42, 0.2)

	if len(train1) != 80 || len(test1) != 20 {
		t.Fatalf("split sizes = %d/%d, want 80/20", len(train1), len(test1))
	}
	for i := range train1 {
		if train1[i] != train2[i] {
			t.Fatalf("train indices differ at %d: %d vs %d", i, train1[i], train2[i])
		}
	}
	for i := range test1 {
		if test1[i] != test2[i] {
			t.Fatalf("test indices differ at %d: %d vs %d", i, test1[i], test2[i])
		}
	}
}

func TestSplitDifferentSeeds(t *testing.T) {
	_, test1 := Split(100, 42, 0.2)
	_, test2 := Split(100, 43, 0.2)

	same := true
	for i := range test1 {
		if test1[i] != test2[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical splits")
	}
}

func TestSplitPartition(t *testing.T) {
	train, test := Split(10, 7, 0.2)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), test...) {
		if seen[i] {
			t.Fatalf("index %d appears twice", i)
		}
		seen[i] = true
	}
	if len(seen) != 10 {
		t.Errorf("partition covers %d indices, want 10", len(seen))
	}
}

func TestSplitClamps(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		fraction  float64
		wantTest  int
		wantTrain int
	}{
		{"tiny dataset keeps one test row", 2, 0.2, 1, 1},
		{"fraction one still leaves one train row", 5, 1.0, 4, 1},
		{"round half up", 10, 0.25, 3, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test := Split(tt.n, 42, tt.fraction)
			if len(test) != tt.wantTest || len(train) != tt.wantTrain {
				t.Errorf("Split(%d, 42, %v) sizes = %d/%d, want %d/%d",
					tt.n, tt.fraction, len(train), len(test), tt.wantTrain, tt.wantTest)
			}
		})
	}
}
