package nwws

import (
	"encoding/xml"

	"gosrc.io/xmpp/stanza"
)

// MessageExtension is the <x xmlns="nwws-oi"> child element NWWS-OI attaches
// to every groupchat message in the room, carrying the raw text product and
// its WMO/AWIPS header fields. The feed never puts the product in <body>.
type MessageExtension struct {
	stanza.MsgExtension
	XMLName xml.Name `xml:"nwws-oi x"`
	Text    string   `xml:",chardata"`
	// Four character issuing office, e.g. KCLE.
	Cccc string `xml:"cccc,attr"`
	// Six character WMO abbreviated heading (T1T2A1A2ii).
	Ttaaii string `xml:"ttaaii,attr"`
	// ISO 8601 UTC issue time.
	Issue string `xml:"issue,attr"`
	// AWIPS ID / AFOS PIL.
	AwipsID string `xml:"awipsid,attr"`
	// "<pid>.<seq>" — lets a consumer detect gaps in the stream.
	ID string `xml:"id,attr"`
}

func init() {
	stanza.TypeRegistry.MapExtension(stanza.PKTMessage, xml.Name{Space: "nwws-oi", Local: "x"}, MessageExtension{})
}
