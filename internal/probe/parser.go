// Package probe turns captured packets into traffic logs and ships them
// to the ingestion subject in batches.
package probe

import (
	"fmt"
	"time"

	"netwatch/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ParsePacket decodes a captured frame into a traffic log candidate. Only
// IPv4 TCP and UDP packets are kept; everything else returns an error and
// is skipped by the capture loop.
func ParsePacket(packet gopacket.Packet, iface string) (*model.TrafficLog, error) {
	l := &model.TrafficLog{
		Timestamp: time.Now(),
		Action:    model.ActionAllow,
		DataSize:  int64(len(packet.Data())),
		Metadata:  map[string]string{"interface": iface, "origin": "probe"},
	}
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		l.Timestamp = meta.Timestamp
	}

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return nil, fmt.Errorf("not an IPv4 packet")
	}
	ip := ipLayer.(*layers.IPv4)
	l.SourceIP = ip.SrcIP.String()
	l.DestinationIP = ip.DstIP.String()

	if t := packet.Layer(layers.LayerTypeTCP); t != nil {
		tcp := t.(*layers.TCP)
		l.Protocol = "TCP"
		l.DestinationPort = int(tcp.DstPort)
	} else if u := packet.Layer(layers.LayerTypeUDP); u != nil {
		udp := u.(*layers.UDP)
		l.Protocol = "UDP"
		l.DestinationPort = int(udp.DstPort)
	} else {
		return nil, fmt.Errorf("not a TCP or UDP packet")
	}

	// Well-known ports refine the protocol label for the dashboard.
	switch l.DestinationPort {
	case 53:
		l.Protocol = "DNS"
	case 80:
		l.Protocol = "HTTP"
	case 443:
		l.Protocol = "HTTPS"
	}

	return l, nil
}
