package preprocessing

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/YuminosukeSato/automl/pkg/errors"
)

func TestLabelEncoderFitTransform(t *testing.T) {
	enc := NewLabelEncoder("job")
	if err := enc.Fit([]string{"technician", "admin", "admin", "blue-collar"}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// 語彙はソート済みの重複なし集合
	want := []string{"admin", "blue-collar", "technician"}
	if len(enc.ClassLabels) != len(want) {
		t.Fatalf("ClassLabels = %v, want %v", enc.ClassLabels, want)
	}
	for i, label := range want {
		if enc.ClassLabels[i] != label {
			t.Errorf("ClassLabels[%d] = %q, want %q", i, enc.ClassLabels[i], label)
		}
	}

	for i, label := range want {
		code, err := enc.Transform(label)
		if err != nil {
			t.Fatalf("Transform(%q) error = %v", label, err)
		}
		if code != i {
			t.Errorf("Transform(%q) = %d, want %d", label, code, i)
		}
		back, err := enc.InverseTransform(code)
		if err != nil {
			t.Fatalf("InverseTransform(%d) error = %v", code, err)
		}
		if back != label {
			t.Errorf("InverseTransform(%d) = %q, want %q", code, back, label)
		}
	}
}

func TestLabelEncoderUnknownCategory(t *testing.T) {
	enc := NewLabelEncoder("job")
	if err := enc.Fit([]string{"admin", "services"}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	_, err := enc.Transform("astronaut")
	var uErr *errors.UnknownCategoryError
	if !errors.As(err, &uErr) {
		t.Fatalf("Transform() error = %v, want *UnknownCategoryError", err)
	}
	if uErr.Column != "job" || uErr.Value != "astronaut" {
		t.Errorf("error fields = %+v", uErr)
	}
	if len(uErr.ValidValues) != 2 {
		t.Errorf("ValidValues = %v, want the fitted vocabulary", uErr.ValidValues)
	}
}

func TestLabelEncoderGobRoundTrip(t *testing.T) {
	enc := NewLabelEncoder("y")
	if err := enc.Fit([]string{"yes", "no", "yes"}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(enc); err != nil {
		t.Fatalf("gob encode error = %v", err)
	}
	var loaded LabelEncoder
	if err := gob.NewDecoder(&buf).Decode(&loaded); err != nil {
		t.Fatalf("gob decode error = %v", err)
	}

	// 逆引きインデックスはgobに載らないため、デコード後の初回Transformで再構築される
	code, err := loaded.Transform("yes")
	if err != nil {
		t.Fatalf("Transform() after decode error = %v", err)
	}
	if code != 1 { // sorted: ["no", "yes"]
		t.Errorf("Transform(\"yes\") = %d, want 1", code)
	}
}

func TestLabelEncoderInverseTransformRange(t *testing.T) {
	enc := NewLabelEncoder("y")
	if err := enc.Fit([]string{"no", "yes"}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if _, err := enc.InverseTransform(2); err == nil {
		t.Error("InverseTransform(2) expected out-of-range error")
	}
	if _, err := enc.InverseTransform(-1); err == nil {
		t.Error("InverseTransform(-1) expected out-of-range error")
	}
}
