package quota

import (
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
)

func TestAllowHonoursBurstPerKey(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(config.QuotaConfig{PublicPerMinute: 1, PublicBurst: 2, MemberPerMinute: 60, MemberBurst: 5})
	svc.now = func() time.Time { return now }

	if !svc.Allow(TierPublic, "ip-1") || !svc.Allow(TierPublic, "ip-1") {
		t.Fatal("expected burst of two")
	}
	if svc.Allow(TierPublic, "ip-1") {
		t.Fatal("expected third message to be limited")
	}
	if !svc.Allow(TierPublic, "ip-2") {
		t.Fatal("keys must not share a budget")
	}

	now = now.Add(time.Minute)
	if !svc.Allow(TierPublic, "ip-1") {
		t.Fatal("expected budget to refill after a minute")
	}
}

func TestMemberTierIsSeparate(t *testing.T) {
	svc := NewService(config.QuotaConfig{PublicPerMinute: 1, PublicBurst: 1, MemberPerMinute: 1, MemberBurst: 3})
	now := time.Now()
	svc.now = func() time.Time { return now }

	svc.Allow(TierPublic, "u1")
	for i := 0; i < 3; i++ {
		if !svc.Allow(TierMember, "u1") {
			t.Fatalf("member message %d should be allowed", i)
		}
	}
	if svc.Allow(TierMember, "u1") {
		t.Fatal("member burst exhausted")
	}
}
