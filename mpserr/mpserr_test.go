package mpserr

import (
	"errors"
	"testing"

	"github.com/gostdlib/base/context"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		c    Category
		want string
	}{
		{CatUnknown, "Unknown"},
		{CatClient, "Client"},
		{CatResource, "Resource"},
		{CatInternal, "Internal"},
	}
	for _, test := range tests {
		if got := test.c.String(); got != test.want {
			t.Errorf("Category(%d).String() = %q, want %q", test.c, got, test.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		ty   Type
		want string
	}{
		{TypeUnknown, "Unknown"},
		{TypeParam, "Param"},
		{TypeLimit, "Limit"},
		{TypeResource, "Resource"},
		{TypeUnimpl, "Unimpl"},
		{TypeInvariant, "Invariant"},
	}
	for _, test := range tests {
		if got := test.ty.String(); got != test.want {
			t.Errorf("Type(%d).String() = %q, want %q", test.ty, got, test.want)
		}
	}
}

func TestEWrapsAndClassifies(t *testing.T) {
	ctx := context.Background()
	err := E(ctx, CatResource, TypeResource, errors.New("no segments free"))

	if err.Category != CatResource {
		t.Errorf("Category = %v, want CatResource", err.Category)
	}
	if err.Type != TypeResource {
		t.Errorf("Type = %v, want TypeResource", err.Type)
	}
	if err.Error() == "" {
		t.Errorf("Error() = empty string")
	}
	if err.Unwrap() == nil {
		t.Errorf("Unwrap() = nil, want the wrapped cause")
	}
}

func TestIsResourceIsLimitIsParam(t *testing.T) {
	ctx := context.Background()

	resourceErr := E(ctx, CatResource, TypeResource, errors.New("x"))
	if !IsResource(resourceErr) {
		t.Errorf("IsResource(resourceErr) = false, want true")
	}
	if IsLimit(resourceErr) {
		t.Errorf("IsLimit(resourceErr) = true, want false")
	}

	limitErr := E(ctx, CatResource, TypeLimit, errors.New("x"))
	if !IsLimit(limitErr) {
		t.Errorf("IsLimit(limitErr) = false, want true")
	}

	paramErr := E(ctx, CatClient, TypeParam, errors.New("x"))
	if !IsParam(paramErr) {
		t.Errorf("IsParam(paramErr) = false, want true")
	}
	if IsResource(paramErr) {
		t.Errorf("IsResource(paramErr) = true, want false")
	}
}

func TestIsResourceFalseForPlainError(t *testing.T) {
	plain := errors.New("not an mpserr.Err")
	if IsResource(plain) {
		t.Errorf("IsResource(plain error) = true, want false")
	}
	if IsLimit(plain) {
		t.Errorf("IsLimit(plain error) = true, want false")
	}
	if IsParam(plain) {
		t.Errorf("IsParam(plain error) = true, want false")
	}
}
