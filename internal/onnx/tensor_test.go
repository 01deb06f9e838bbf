package onnx

import "testing"

func TestNewTensor(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		tensor, err := NewTensor([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tensor.DType() != DTypeFloat32 {
			t.Errorf("dtype = %q", tensor.DType())
		}
		if tensor.Len() != 6 {
			t.Errorf("len = %d, want 6", tensor.Len())
		}
		if tensor.Int64s() != nil {
			t.Error("Int64s must be nil for a float32 tensor")
		}
	})

	t.Run("int64", func(t *testing.T) {
		tensor, err := NewTensor([]int64{7, 8}, []int64{1, 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tensor.DType() != DTypeInt64 {
			t.Errorf("dtype = %q", tensor.DType())
		}
		if got := tensor.Int64s(); len(got) != 2 || got[0] != 7 {
			t.Errorf("data = %v", got)
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		if _, err := NewTensor([]int64{1, 2, 3}, []int64{2, 2}); err == nil {
			t.Fatal("expected error for mismatched shape")
		}
	})

	t.Run("negative dim", func(t *testing.T) {
		if _, err := NewTensor([]int64{}, []int64{-1}); err == nil {
			t.Fatal("expected error for negative dim")
		}
	})

	t.Run("shape is copied", func(t *testing.T) {
		shape := []int64{1, 2}
		tensor, err := NewTensor([]int64{5, 6}, shape)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		shape[0] = 99
		if tensor.Shape()[0] != 1 {
			t.Error("tensor shape aliases the caller's slice")
		}
	})
}

func TestNewZeroTensor(t *testing.T) {
	t.Run("symbolic dims resolve to zero", func(t *testing.T) {
		tensor, err := NewZeroTensor("float32", []any{float64(1), "seq", float64(16)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		shape := tensor.Shape()
		if shape[0] != 1 || shape[1] != 0 || shape[2] != 16 {
			t.Errorf("shape = %v, want [1 0 16]", shape)
		}
		if tensor.Len() != 0 {
			t.Errorf("len = %d, want 0", tensor.Len())
		}
	})

	t.Run("dtype aliases", func(t *testing.T) {
		for _, alias := range []string{"float", "f32", "Float32"} {
			tensor, err := NewZeroTensor(alias, []any{float64(2)})
			if err != nil {
				t.Fatalf("%q: %v", alias, err)
			}
			if tensor.DType() != DTypeFloat32 {
				t.Errorf("%q resolved to %q", alias, tensor.DType())
			}
		}

		for _, alias := range []string{"int64", "i64", "long"} {
			tensor, err := NewZeroTensor(alias, []any{float64(2)})
			if err != nil {
				t.Fatalf("%q: %v", alias, err)
			}
			if tensor.DType() != DTypeInt64 {
				t.Errorf("%q resolved to %q", alias, tensor.DType())
			}
		}
	})

	t.Run("unknown dtype", func(t *testing.T) {
		if _, err := NewZeroTensor("complex128", []any{float64(1)}); err == nil {
			t.Fatal("expected error for unknown dtype")
		}
	})
}
