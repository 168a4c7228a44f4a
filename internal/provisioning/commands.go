package provisioning

import (
	"fmt"
	"strings"

	"github.com/michaelayoade/dotmac-sub-sub006/internal/models"
)

// NasAction is a provisioning operation against a NAS device.
type NasAction string

const (
	ActionCreate    NasAction = "create"
	ActionDelete    NasAction = "delete"
	ActionSuspend   NasAction = "suspend"
	ActionUnsuspend NasAction = "unsuspend"
)

// BlockedAddressList is the firewall address list used to block
// subscribers that have no session-oriented credential to disable.
const BlockedAddressList = "blocked-subscribers"

// BuildNasCommands produces the vendor CLI commands for an action on a
// subscription. Only MikroTik has built-in command generation; other
// vendors return an empty list and callers fall back to provisioning
// adapters. Commands that need an unset field are silently skipped.
func BuildNasCommands(sub *models.Subscription, nas *models.NasDevice, profile *models.RadiusProfile, rules []models.NasConnectionRule, action NasAction) []string {
	if sub == nil || nas == nil {
		return nil
	}
	if nas.Vendor != models.VendorMikrotik {
		return nil
	}

	connType := ResolveConnectionType(sub, profile, nas, rules)
	login := SanitizeRouterOSValue(sub.Login)
	ip := SanitizeRouterOSValue(sub.IPv4Address)
	mac := SanitizeRouterOSValue(sub.MACAddress)
	profileName := ""
	if profile != nil {
		profileName = SanitizeRouterOSValue(profile.Name)
	}

	switch connType {
	case models.ConnectionPPPoE:
		return pppoeCommands(action, login, ip, profileName)
	case models.ConnectionDHCP:
		rateLimit := SanitizeRouterOSValue(BuildMikrotikRateLimit(profile))
		return dhcpLeaseCommands(action, ip, mac, rateLimit, false)
	case models.ConnectionHotspot:
		return hotspotCommands(action, login, ip, profileName)
	case models.ConnectionStatic:
		return staticCommands(action, ip)
	case models.ConnectionIPoE:
		return dhcpLeaseCommands(action, ip, mac, "", true)
	}
	return nil
}

func pppoeCommands(action NasAction, login, ip, profileName string) []string {
	if login == "" {
		return nil
	}
	switch action {
	case ActionCreate:
		cmd := fmt.Sprintf("/ppp secret add name=\"%s\"", login)
		if profileName != "" {
			cmd += fmt.Sprintf(" profile=\"%s\"", profileName)
		}
		if ip != "" {
			cmd += fmt.Sprintf(" remote-address=%s", ip)
		}
		cmd += " service=pppoe"
		return []string{cmd}
	case ActionDelete:
		return []string{fmt.Sprintf("/ppp secret remove [find name=\"%s\"]", login)}
	case ActionSuspend:
		return []string{
			fmt.Sprintf("/ppp secret set [find name=\"%s\"] disabled=yes", login),
			fmt.Sprintf("/ppp active remove [find name=\"%s\"]", login),
		}
	case ActionUnsuspend:
		return []string{fmt.Sprintf("/ppp secret set [find name=\"%s\"] disabled=no", login)}
	}
	return nil
}

func dhcpLeaseCommands(action NasAction, ip, mac, rateLimit string, useSrcMac bool) []string {
	switch action {
	case ActionCreate:
		if ip == "" || mac == "" {
			return nil
		}
		cmd := fmt.Sprintf("/ip dhcp-server lease add address=%s mac-address=%s", ip, mac)
		if rateLimit != "" {
			cmd += fmt.Sprintf(" rate-limit=\"%s\"", rateLimit)
		}
		if useSrcMac {
			cmd += " use-src-mac=yes"
		}
		return []string{cmd}
	case ActionDelete:
		if ip == "" {
			return nil
		}
		return []string{fmt.Sprintf("/ip dhcp-server lease remove [find address=%s]", ip)}
	case ActionSuspend:
		if useSrcMac || ip == "" {
			return nil
		}
		return []string{fmt.Sprintf("/ip dhcp-server lease set [find address=%s] disabled=yes", ip)}
	case ActionUnsuspend:
		if useSrcMac || ip == "" {
			return nil
		}
		return []string{fmt.Sprintf("/ip dhcp-server lease set [find address=%s] disabled=no", ip)}
	}
	return nil
}

func hotspotCommands(action NasAction, login, ip, profileName string) []string {
	if login == "" {
		return nil
	}
	switch action {
	case ActionCreate:
		cmd := fmt.Sprintf("/ip hotspot user add name=\"%s\"", login)
		if profileName != "" {
			cmd += fmt.Sprintf(" profile=\"%s\"", profileName)
		}
		if ip != "" {
			cmd += fmt.Sprintf(" address=%s", ip)
		}
		return []string{cmd}
	case ActionDelete:
		return []string{fmt.Sprintf("/ip hotspot user remove [find name=\"%s\"]", login)}
	case ActionSuspend:
		return []string{
			fmt.Sprintf("/ip hotspot user set [find name=\"%s\"] disabled=yes", login),
			fmt.Sprintf("/ip hotspot active remove [find user=\"%s\"]", login),
		}
	case ActionUnsuspend:
		return []string{fmt.Sprintf("/ip hotspot user set [find name=\"%s\"] disabled=no", login)}
	}
	return nil
}

func staticCommands(action NasAction, ip string) []string {
	if ip == "" {
		return nil
	}
	switch action {
	case ActionSuspend:
		return []string{AddressListAddCommand(BlockedAddressList, ip)}
	case ActionUnsuspend:
		return []string{AddressListRemoveCommand(BlockedAddressList, ip)}
	}
	return nil
}

// SessionKillCommands returns the RouterOS commands that drop a live
// session for a login. Hotspot sessions live in a different table.
func SessionKillCommands(login string, connType models.ConnectionType) []string {
	login = SanitizeRouterOSValue(login)
	if login == "" {
		return nil
	}
	if connType == models.ConnectionHotspot {
		return []string{fmt.Sprintf("/ip hotspot active remove [find user=\"%s\"]", login)}
	}
	return []string{fmt.Sprintf("/ppp active remove [find name=\"%s\"]", login)}
}

// AddressListAddCommand blocks an address via a firewall address list.
func AddressListAddCommand(list, ip string) string {
	return fmt.Sprintf("/ip firewall address-list add list=%s address=%s",
		SanitizeRouterOSValue(list), SanitizeRouterOSValue(ip))
}

// AddressListRemoveCommand reverses AddressListAddCommand.
func AddressListRemoveCommand(list, ip string) string {
	return fmt.Sprintf("/ip firewall address-list remove [find list=%s address=%s]",
		SanitizeRouterOSValue(list), SanitizeRouterOSValue(ip))
}

// routerOSSafe whitelists characters allowed inside interpolated
// RouterOS command values. Everything else (quotes, semicolons,
// braces, backslashes, newlines) is dropped. This is a security
// boundary: values come from subscriber-controlled fields.
func routerOSSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '.', ':', '-', '_', '@', '/', '+', ',':
		return true
	}
	return false
}

// SanitizeRouterOSValue filters a value down to the whitelist before
// it is embedded in a command string.
func SanitizeRouterOSValue(value string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if routerOSSafe(r) {
			return r
		}
		return -1
	}, value))
}
