package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// SNMP OIDs for device identification.
const (
	oidSysDescr = "1.3.6.1.2.1.1.1.0"
	oidSysName  = "1.3.6.1.2.1.1.5.0"
)

// SNMPConfig controls the optional SNMP identification probe.
type SNMPConfig struct {
	Enabled   bool
	Port      int
	Community string
	Timeout   time.Duration
}

// SysInfo is the identification a device reports over SNMP.
type SysInfo struct {
	Name  string
	Descr string
}

// Identify reads sysName and sysDescr over SNMP v2c. It is used to label
// devices that rejected every CLI credential, so failure is normal and only
// means the device stays unlabeled.
func Identify(addr string, cfg SNMPConfig) (SysInfo, bool) {
	if !cfg.Enabled || cfg.Community == "" {
		return SysInfo{}, false
	}
	if cfg.Port <= 0 {
		cfg.Port = 161
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	g := &gosnmp.GoSNMP{
		Target:    addr,
		Port:      uint16(cfg.Port),
		Version:   gosnmp.Version2c,
		Community: cfg.Community,
		Timeout:   cfg.Timeout,
		Retries:   1,
	}

	if err := g.Connect(); err != nil {
		return SysInfo{}, false
	}
	defer g.Conn.Close()

	result, err := g.Get([]string{oidSysDescr, oidSysName})
	if err != nil {
		return SysInfo{}, false
	}

	var info SysInfo
	for _, variable := range result.Variables {
		switch variable.Name {
		case "." + oidSysDescr:
			info.Descr = snmpString(variable.Value)
		case "." + oidSysName:
			info.Name = snmpString(variable.Value)
		}
	}
	return info, info.Name != "" || info.Descr != ""
}

func snmpString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// SNMPIdentifier exposes Identify behind the collaborator shape the
// traversal engine expects.
type SNMPIdentifier struct {
	cfg SNMPConfig
}

func NewSNMPIdentifier(cfg SNMPConfig) *SNMPIdentifier {
	return &SNMPIdentifier{cfg: cfg}
}

// Identify labels a device by its SNMP system info. A canceled context
// skips the query entirely.
func (s *SNMPIdentifier) Identify(ctx context.Context, addr string) (SysInfo, bool) {
	if ctx.Err() != nil {
		return SysInfo{}, false
	}
	return Identify(addr, s.cfg)
}
