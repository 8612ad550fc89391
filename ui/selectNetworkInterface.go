package ui

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrNoInterface is returned when no interface is up and non-loopback.
var ErrNoInterface = errors.New("no valid network interfaces found")

// interfaceOptions lists the interfaces that are up and not loopback.
func interfaceOptions(ifaces []net.Interface) []huh.Option[string] {
	choices := []huh.Option[string]{}
	for _, iface := range ifaces {
		if (iface.Flags&net.FlagUp) == 0 || (iface.Flags&net.FlagLoopback) != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		addrStrs := []string{}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok {
				addrStrs = append(addrStrs, ipNet.IP.String())
			}
		}
		pretty := fmt.Sprintf("%s (%s)", iface.Name, strings.Join(addrStrs, ", "))
		choices = append(choices, huh.NewOption(pretty, iface.Name))
	}
	return choices
}

// SelectNetworkInterface prompts the user to select a network interface from the available ones.
func SelectNetworkInterface() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list network interfaces: %w", err)
	}

	choices := interfaceOptions(ifaces)
	if len(choices) == 0 {
		return "", ErrNoInterface
	}

	var selected string
	form := huh.NewSelect[string]().
		Title("Select a network interface to watch").
		Options(choices...).
		Value(&selected)

	if err := form.Run(); err != nil {
		return "", fmt.Errorf("interface selection failed: %w", err)
	}
	return selected, nil
}
