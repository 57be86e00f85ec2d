package media

import (
	"context"
	"errors"
	"testing"
)

func TestStoreAndGet(t *testing.T) {
	svc := NewService(0)
	ctx := context.Background()

	asset, err := svc.Store(ctx, []byte("abc"), "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("Store err: %v", err)
	}
	if asset.MimeType != "audio/webm" {
		t.Fatalf("expected parameters stripped, got %q", asset.MimeType)
	}

	got, err := svc.Get(ctx, asset.ID)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if string(got.Data) != "abc" {
		t.Fatalf("unexpected data %q", got.Data)
	}
}

func TestStoreValidation(t *testing.T) {
	svc := NewService(4)
	ctx := context.Background()

	cases := []struct {
		name string
		data []byte
		mime string
		want error
	}{
		{"empty", nil, "audio/wav", ErrEmpty},
		{"too large", []byte("12345"), "audio/wav", ErrTooLarge},
		{"not audio", []byte("1"), "image/png", ErrUnsupportedType},
	}
	for _, tc := range cases {
		if _, err := svc.Store(ctx, tc.data, tc.mime); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
