package emulator

import (
	"fmt"
	"os"
	"path/filepath"
)

const startupScriptName = "xedgesim-startup.resc"

// writeStartupScript writes the emulator startup script into cfg.WorkingDir:
// create the machine, load the platform description and firmware ELF,
// attach a file backend to the primary serial port, then start and
// immediately pause so the coordinator controls all further advancement.
func writeStartupScript(cfg Config) (string, error) {
	path := filepath.Join(cfg.WorkingDir, startupScriptName)
	script := fmt.Sprintf(`mach create "%s"
machine LoadPlatformDescription @%s
sysbus LoadELF @%s
%s CreateFileBackend @%s true
start
pause
`, cfg.MachineName, cfg.PlatformDescriptionPath, cfg.FirmwareELFPath, cfg.SerialUartName, cfg.SerialOutputPath())

	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("write emulator startup script: %w", err)
	}
	return path, nil
}
