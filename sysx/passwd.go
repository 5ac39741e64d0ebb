package sysx

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// readLoginShell scans /etc/passwd for name's login shell. os/user
// resolves everything else (uid, gid, home) through nss-aware code
// paths, but does not surface the shell field, so this one field is
// read directly from the passwd database, the same file getpwnam(3)
// itself consults when no other NSS module is configured.
func readLoginShell(name string) (string, error) {
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return "", fmt.Errorf("sysx: open /etc/passwd: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			continue
		}
		if fields[0] == name {
			return fields[6], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("sysx: scan /etc/passwd: %w", err)
	}
	return "", fmt.Errorf("sysx: %s not found in /etc/passwd", name)
}
