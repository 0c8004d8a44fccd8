package resp

import "testing"

// ---------- Constructors: success ----------

func TestPlainOK_And_JSONOK(t *testing.T) {
	r1 := PlainOK("hola\n")
	if r1.Status != 200 || r1.JSON || r1.Body != "hola\n" || r1.Err != nil {
		t.Fatalf("PlainOK mismatch: %+v", r1)
	}
	if r1.Headers != nil {
		t.Fatalf("PlainOK must have nil Headers initially")
	}

	r2 := JSONOK(`{"ok":true}`)
	if r2.Status != 200 || !r2.JSON || r2.Body != `{"ok":true}` || r2.Err != nil {
		t.Fatalf("JSONOK mismatch: %+v", r2)
	}
	if r2.Headers != nil {
		t.Fatalf("JSONOK should start with nil Headers")
	}
}

// ---------- Constructors: errors ----------

func TestErrorConstructors_Status_Code_Message(t *testing.T) {
	type tc struct {
		name   string
		got    Result
		status int
		code   string
		detail string
	}

	tests := []tc{
		{"BadReq", BadReq("InvalidParameter", "x"), 400, "InvalidParameter", "x"},
		{"Unauthorized", Unauthorized("Unauthorised", "missing credentials"), 401, "Unauthorised", "missing credentials"},
		{"Forbidden", Forbidden("Unauthorised", "admin required"), 401, "Unauthorised", "admin required"},
		{"NotFound", NotFound("not_found", "missing"), 404, "not_found", "missing"},
		{"Cancelled", Cancelled("Cancelled", "session cancelled"), 499, "Cancelled", "session cancelled"},
		{"Internal", Internal("Internal", "boom"), 500, "Internal", "boom"},
	}

	for _, tt := range tests {
		if tt.got.Status != tt.status {
			t.Fatalf("%s status=%d want %d", tt.name, tt.got.Status, tt.status)
		}
		if !tt.got.JSON {
			t.Fatalf("%s JSON must be true", tt.name)
		}
		if tt.got.Err == nil || tt.got.Err.Code != tt.code || tt.got.Err.Message != tt.detail {
			t.Fatalf("%s Err mismatch: %+v", tt.name, tt.got.Err)
		}
		if tt.got.Err.StatusCode != tt.status {
			t.Fatalf("%s Err.StatusCode=%d want %d", tt.name, tt.got.Err.StatusCode, tt.status)
		}
		if tt.got.Body != "" {
			t.Fatalf("%s Body should be empty when Err!=nil", tt.name)
		}
	}
}

func TestOverCapacity_SetsRetryAfterHeaderAndBody(t *testing.T) {
	r := OverCapacity("OverCapacity", "shedding load", 5, "Open")
	if r.Status != 503 {
		t.Fatalf("status=%d want 503", r.Status)
	}
	if r.Err.RetryAfter == nil || *r.Err.RetryAfter != 5 {
		t.Fatalf("RetryAfter mismatch: %+v", r.Err)
	}
	if r.Err.CircuitState != "Open" {
		t.Fatalf("CircuitState mismatch: %+v", r.Err)
	}
	if r.Headers["Retry-After"] != "5" {
		t.Fatalf("Retry-After header missing: %+v", r.Headers)
	}
}

// ---------- WithHeader: creates map when nil, keeps fields ----------

func TestWithHeader_CreatesMap_WhenNil_AndKeepsFields(t *testing.T) {
	base := PlainOK("hi")
	if base.Headers != nil {
		t.Fatalf("precondition: Headers should be nil")
	}
	with := base.WithHeader("X-Request-Id", "t-1")

	// Does not mutate the original (it was nil, the map was created on the copy).
	if base.Headers != nil {
		t.Fatalf("original Headers must remain nil")
	}
	if with.Headers == nil || with.Headers["X-Request-Id"] != "t-1" {
		t.Fatalf("missing header in copy: %+v", with.Headers)
	}

	if with.Status != base.Status || with.Body != base.Body || with.JSON != base.JSON || with.Err != base.Err {
		t.Fatalf("fields changed unexpectedly: base=%+v with=%+v", base, with)
	}
}

// ---------- WithHeader: chaining and overwrite ----------

func TestWithHeader_Chaining_And_Overwrite(t *testing.T) {
	r := JSONOK(`{}`)

	r1 := r.WithHeader("A", "1")
	if r1.Headers["A"] != "1" {
		t.Fatalf("A missing: %+v", r1.Headers)
	}

	r2 := r1.WithHeader("B", "2").WithHeader("A", "9")
	if r2.Headers["A"] != "9" || r2.Headers["B"] != "2" {
		t.Fatalf("chain overwrite failed: %+v", r2.Headers)
	}

	if r2.Status != 200 || !r2.JSON || r2.Body != `{}` {
		t.Fatalf("fields changed: %+v", r2)
	}
}

// ---------- WithHeader: shared map once already non-nil (documents current behavior) ----------

func TestWithHeader_SharesMap_WhenAlreadyNonNil(t *testing.T) {
	r1 := JSONOK(`{}`).WithHeader("A", "1")
	if r1.Headers == nil {
		t.Fatalf("precondition: r1.Headers not nil")
	}
	r2 := r1.WithHeader("B", "2")

	// The method doesn't clone the map once it exists, so r1 observes the
	// new key too.
	if r1.Headers["B"] != "2" {
		t.Fatalf("expected shared map behavior; r1 missing B: %+v", r1.Headers)
	}
	if r2.Headers["B"] != "2" {
		t.Fatalf("r2 missing B: %+v", r2.Headers)
	}
}
