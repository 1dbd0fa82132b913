package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseConstruct,
				Kind:   KindConstruction,
				Path:   []string{"point", "coords", "x"},
				GoType: "string",
				CType:  "int",
				Detail: "cannot convert",
			},
			contains: []string{"[construct]", "construction", "point.coords.x", "string", "int", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseAccess,
				Kind:  KindAccess,
			},
			contains: []string{"[access]", "access"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseResolve,
				Kind:   KindUnresolvedSymbol,
				Detail: "symbol missing",
				Cause:  errors.New("dlsym failed"),
			},
			contains: []string{"[resolve]", "unresolved_symbol", "symbol missing", "caused by", "dlsym failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseLayout,
		Kind:  KindLayout,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseLayout, Kind: KindLayout}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDeclare, Kind: KindLayout}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseLayout, Kind: KindDefinition}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrLayout) {
		t.Error("errors.Is should match kind sentinel")
	}
	if errors.Is(err, ErrAccess) {
		t.Error("errors.Is should not match other sentinel")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseConstruct, KindConstruction).
		Path("point", "x").
		GoType("string").
		CType("int").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "integer", "string").
		Build()

	if err.Phase != PhaseConstruct {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseConstruct)
	}
	if err.Kind != KindConstruction {
		t.Errorf("Kind = %v, want %v", err.Kind, KindConstruction)
	}
	if len(err.Path) != 2 || err.Path[0] != "point" || err.Path[1] != "x" {
		t.Errorf("Path = %v, want [point x]", err.Path)
	}
	if err.GoType != "string" || err.CType != "int" {
		t.Errorf("GoType=%v CType=%v", err.GoType, err.CType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected integer, got string" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Definition", func(t *testing.T) {
		err := Definition("struct S", "duplicate field %q", "x")
		if !errors.Is(err, ErrDefinition) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindDefinition)
		}
		if !strings.Contains(err.Error(), `"x"`) {
			t.Errorf("message %q should name the field", err.Error())
		}
	})

	t.Run("Incomplete", func(t *testing.T) {
		err := Incomplete("struct S")
		if !errors.Is(err, ErrLayout) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindLayout)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseConstruct, KindConstruction, []string{"flags"}, 9, "unsigned int:3")
		if !errors.Is(err, ErrConstruction) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindConstruction)
		}
		if err.Value != 9 {
			t.Errorf("Value = %v, want 9", err.Value)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds([]string{"items"}, 10, 5)
		if !errors.Is(err, ErrAccess) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAccess)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("WriteProtected", func(t *testing.T) {
		err := WriteProtected([]string{"p", "x"}, "const int")
		if !errors.Is(err, ErrWriteProtection) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindWriteProtection)
		}
	})

	t.Run("UnresolvedSymbol", func(t *testing.T) {
		err := UnresolvedSymbol("libm.so.6", "nope", nil)
		if !errors.Is(err, ErrUnresolvedSymbol) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnresolvedSymbol)
		}
		if !strings.Contains(err.Error(), "nope") {
			t.Errorf("message %q should name the symbol", err.Error())
		}
	})

	t.Run("ConventionMismatch", func(t *testing.T) {
		err := ConventionMismatch("add", "expected %d arguments, got %d", 2, 1)
		if !errors.Is(err, ErrConventionMismatch) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindConventionMismatch)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseInvoke, "struct by value")
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})
}

func TestMissingSymbolsError(t *testing.T) {
	t.Run("single symbol", func(t *testing.T) {
		err := NewMissingSymbolsError([]string{"libm.so.6#cbrtq"})
		if len(err.Symbols) != 1 {
			t.Fatalf("expected 1 symbol, got %d", len(err.Symbols))
		}
		if err.Symbols[0].Library != "libm.so.6" {
			t.Errorf("library = %q, want libm.so.6", err.Symbols[0].Library)
		}
		if err.Symbols[0].Symbol != "cbrtq" {
			t.Errorf("symbol = %q, want cbrtq", err.Symbols[0].Symbol)
		}
	})

	t.Run("grouped by library", func(t *testing.T) {
		err := NewMissingSymbolsError([]string{
			"libm.so.6#a",
			"libc.so.6#b",
			"libm.so.6#c",
		})
		msg := err.Error()
		if !strings.Contains(msg, "unresolved 3 symbol(s)") {
			t.Errorf("error should contain count, got %s", msg)
		}
		if !strings.Contains(msg, "libm.so.6:") || !strings.Contains(msg, "libc.so.6:") {
			t.Errorf("error should group by library, got %s", msg)
		}
	})

	t.Run("empty", func(t *testing.T) {
		err := NewMissingSymbolsError(nil)
		if !strings.Contains(err.Error(), "no symbols specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingSymbolsError([]string{"lib#fn"})
		if !errors.Is(err, &MissingSymbolsError{}) {
			t.Error("errors.Is should match MissingSymbolsError")
		}
		if !errors.Is(err, ErrUnresolvedSymbol) {
			t.Error("errors.Is should match ErrUnresolvedSymbol")
		}
	})
}
