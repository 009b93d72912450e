package events

import "testing"

func TestTokenSupplyEvent(t *testing.T) {
	evt := TokenSupply{
		Token:  "aux",
		Total:  5000,
		Delta:  250,
		Reason: SupplyReasonMint,
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Type != TypeTokenSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["token"] != "AUX" {
		t.Fatalf("unexpected token attr: %s", evt.Attributes["token"])
	}
	if evt.Attributes["total"] != "5000" || evt.Attributes["delta"] != "250" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reason"] != SupplyReasonMint {
		t.Fatalf("unexpected reason: %s", evt.Attributes["reason"])
	}
}

func TestTokenSupplyEventDefaultsToken(t *testing.T) {
	evt := TokenSupply{Total: 1}.Event()
	if evt.Attributes["token"] != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN token, got %q", evt.Attributes["token"])
	}
	if _, ok := evt.Attributes["delta"]; ok {
		t.Fatalf("zero delta should be omitted")
	}
}
