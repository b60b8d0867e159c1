package events

import (
	"math/big"
	"testing"

	"questchain/crypto"
)

func TestTokenSupplyEvent(t *testing.T) {
	account := [20]byte{0x01}
	evt := TokenSupply{
		Token:   "gem",
		Account: account,
		Total:   big.NewInt(5000),
		Delta:   big.NewInt(250),
		Reason:  SupplyReasonMint,
	}.Event()
	if evt.Type != TypeTokenSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["token"] != "GEM" {
		t.Fatalf("unexpected token attr: %s", evt.Attributes["token"])
	}
	if evt.Attributes["total"] != "5000" || evt.Attributes["delta"] != "250" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["account"] != crypto.FromRaw(account).String() {
		t.Fatalf("unexpected account: %s", evt.Attributes["account"])
	}
	if evt.Attributes["reason"] != SupplyReasonMint {
		t.Fatalf("unexpected reason: %s", evt.Attributes["reason"])
	}
	if blank := (TokenSupply{}).Event(); blank.Attributes["token"] != "UNKNOWN" || blank.Attributes["total"] != "0" {
		t.Fatalf("unexpected defaults: %+v", blank.Attributes)
	}
}

func TestTransferEvent(t *testing.T) {
	evt := Transfer{Asset: "qst", From: [20]byte{0x01}, To: [20]byte{0x02}, Amount: big.NewInt(9)}.Event()
	if evt.Type != TypeTransfer || evt.Attr("asset") != "QST" || evt.Attr("amount") != "9" {
		t.Fatalf("unexpected transfer event: %+v", evt)
	}
	if evt.Attr("to") != crypto.FromRaw([20]byte{0x02}).String() {
		t.Fatalf("unexpected recipient: %s", evt.Attr("to"))
	}
}
