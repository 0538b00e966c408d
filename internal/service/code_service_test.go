package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/service"
	"github.com/mysafehouse/access-api/pkg/config"
)

type registryHarness struct {
	registry   service.CodeRegistry
	properties *fakePropertyRepo
	codes      *fakeAccessCodeRepo
	logs       *fakeAccessLogRepo
}

func newRegistryHarness() *registryHarness {
	cfg := config.Load()
	properties := newFakePropertyRepo()
	codes := newFakeAccessCodeRepo()
	logs := newFakeAccessLogRepo()
	properties.properties[1] = &domain.Property{
		ID: 1, OwnerID: 10, Name: "Rose Cottage", Address: "12 Orchard Lane",
		EmergencyAccessEnabled: true,
	}
	return &registryHarness{
		registry:   service.NewCodeRegistry(codes, properties, logs, cfg),
		properties: properties,
		codes:      codes,
		logs:       logs,
	}
}

func TestEnsureActiveCode_ProvisionsOnce(t *testing.T) {
	h := newRegistryHarness()

	first, created, err := h.registry.EnsureActiveCode(context.Background(), 1)
	if err != nil {
		t.Fatalf("EnsureActiveCode: %v", err)
	}
	if !created {
		t.Error("first call should create a code")
	}

	second, created, err := h.registry.EnsureActiveCode(context.Background(), 1)
	if err != nil {
		t.Fatalf("EnsureActiveCode: %v", err)
	}
	if created {
		t.Error("second call must reuse the existing code")
	}
	if first.Code != second.Code {
		t.Errorf("codes differ across calls: %q vs %q", first.Code, second.Code)
	}
}

func TestGenerate_RequiresOwnership(t *testing.T) {
	h := newRegistryHarness()

	_, err := h.registry.Generate(context.Background(), 42, &domain.GenerateAccessCodeReq{PropertyID: 1})
	if domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	code, err := h.registry.Generate(context.Background(), 10, &domain.GenerateAccessCodeReq{
		PropertyID: 1,
		GrantedTo:  "Dog walker",
		CodeType:   "guest",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code.CodeType != "guest" || code.GrantedTo != "Dog walker" {
		t.Errorf("unexpected code: %+v", code)
	}
	if code.GrantedByUserID == nil || *code.GrantedByUserID != 10 {
		t.Error("granted_by should record the owner")
	}
}

func TestValidate_HappyPath_LogsAndCounts(t *testing.T) {
	h := newRegistryHarness()
	code, _, _ := h.registry.EnsureActiveCode(context.Background(), 1)

	res, err := h.registry.Validate(context.Background(), &domain.ValidateAccessCodeReq{
		AccessCode: code.Code,
		PropertyID: 1,
		UsedByName: "Sam",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid, got %+v", res)
	}
	if res.Property == nil || res.Property.Name != "Rose Cottage" {
		t.Errorf("property payload missing: %+v", res.Property)
	}

	after, _ := h.registry.GetActiveCode(context.Background(), 1)
	if after.UseCount != 1 {
		t.Errorf("use count = %d, want 1", after.UseCount)
	}
	if logs := h.logs.byMethod(domain.MethodManualEntry); len(logs) != 1 {
		t.Errorf("expected 1 MANUAL_ENTRY log, got %d", len(logs))
	}
}

func TestValidate_CaseInsensitiveInput(t *testing.T) {
	h := newRegistryHarness()
	code, _, _ := h.registry.EnsureActiveCode(context.Background(), 1)

	res, err := h.registry.Validate(context.Background(), &domain.ValidateAccessCodeReq{
		AccessCode: "  " + strings.ToLower(code.Code) + " ",
		PropertyID: 1,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !res.Valid {
		t.Errorf("lowercased padded input should validate, got %+v", res)
	}
}

func TestValidate_UnknownCode_Invalid(t *testing.T) {
	h := newRegistryHarness()

	res, err := h.registry.Validate(context.Background(), &domain.ValidateAccessCodeReq{
		AccessCode: "DEADBEEF",
		PropertyID: 1,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Valid {
		t.Error("unknown code must not validate")
	}
	if res.Property != nil {
		t.Error("invalid result must not leak property details")
	}
}

func TestValidate_ExpiredCode_Invalid(t *testing.T) {
	h := newRegistryHarness()
	code, _, _ := h.registry.EnsureActiveCode(context.Background(), 1)

	h.codes.mu.Lock()
	h.codes.codes[code.ID].ExpiresAt = time.Now().Add(-time.Second)
	h.codes.mu.Unlock()

	res, _ := h.registry.Validate(context.Background(), &domain.ValidateAccessCodeReq{
		AccessCode: code.Code,
		PropertyID: 1,
	})
	if res.Valid {
		t.Error("expired code must not validate")
	}
	if res.Message != "Access code has expired" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestValidate_MaxUsesReached_Invalid(t *testing.T) {
	h := newRegistryHarness()
	one := 1
	code, err := h.registry.Generate(context.Background(), 10, &domain.GenerateAccessCodeReq{
		PropertyID: 1,
		MaxUses:    &one,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	first, _ := h.registry.Validate(context.Background(), &domain.ValidateAccessCodeReq{AccessCode: code.Code, PropertyID: 1})
	if !first.Valid {
		t.Fatalf("first use should validate: %+v", first)
	}
	second, _ := h.registry.Validate(context.Background(), &domain.ValidateAccessCodeReq{AccessCode: code.Code, PropertyID: 1})
	if second.Valid {
		t.Error("second use past max_uses must not validate")
	}
}

func TestValidate_EmergencyAccessDisabled_Invalid(t *testing.T) {
	h := newRegistryHarness()
	code, _, _ := h.registry.EnsureActiveCode(context.Background(), 1)
	h.properties.properties[1].EmergencyAccessEnabled = false

	res, _ := h.registry.Validate(context.Background(), &domain.ValidateAccessCodeReq{
		AccessCode: code.Code,
		PropertyID: 1,
	})
	if res.Valid {
		t.Error("disabled property must not validate codes")
	}
}
