package tensor

import "testing"

func TestPoolReuse(t *testing.T) {
	t1, err := AllocTensor(Float32, Shape{4})
	if err != nil {
		t.Fatal(err)
	}
	base := &t1.Storage.(*InlineStorage).buf[0]
	t1.Release()

	t2, err := AllocTensor(Float32, Shape{4})
	if err != nil {
		t.Fatal(err)
	}
	got := &t2.Storage.(*InlineStorage).buf[0]
	if base != got {
		t.Fatalf("expected pool to reuse the same backing buffer")
	}
}

func TestAllocTensorNoPoolNotReused(t *testing.T) {
	t1, err := AllocTensorNoPool(Float32, Shape{4})
	if err != nil {
		t.Fatal(err)
	}
	t1.Release() // no-op: not pool-backed

	t2, err := AllocTensor(Float32, Shape{4})
	if err != nil {
		t.Fatal(err)
	}
	// t2 should not come from a pool that never received t1.
	if &t2.Storage.(*InlineStorage).buf[0] == &t1.Storage.(*InlineStorage).buf[0] {
		t.Fatalf("expected the unpooled buffer not to be handed out by the pool")
	}
	if t2.Storage.(*InlineStorage).pool == nil {
		t.Fatalf("expected pool-backed tensor to carry a pool reference")
	}
}

func TestValidateShapeStorageMismatch(t *testing.T) {
	tt, err := AllocTensor(Float32, Shape{2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := tt.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	tt.Storage.(*InlineStorage).buf = tt.Storage.(*InlineStorage).buf[:4]
	if err := tt.Validate(); err == nil {
		t.Fatalf("expected validation error for truncated storage")
	}
}

func TestNestedTensorRejectsRecursion(t *testing.T) {
	leaf, _ := AllocTensor(Float32, Shape{1})
	inner := &Tensor{DType: Nested, Children: []*Tensor{leaf}}
	outer := &Tensor{DType: Nested, Children: []*Tensor{inner}}
	if err := outer.Validate(); err == nil {
		t.Fatalf("expected error for doubly-nested tensor")
	}
}

func TestStringTensorRoundTrip(t *testing.T) {
	st := AllocStringTensor(Shape{2})
	st.StringStorage.Elems[0] = "hello"
	st.StringStorage.Elems[1] = "world"
	if err := st.Validate(); err != nil {
		t.Fatal(err)
	}
}
