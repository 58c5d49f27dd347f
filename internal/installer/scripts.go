package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

const windowsTemplate = `@echo off
echo Installing %[1]s...
echo Copying files...
xcopy /E /I /Y ".\*" "%%PROGRAMFILES%%\%[1]s"
echo Creating desktop shortcut...
set "shortcut_path=%%USERPROFILE%%\Desktop\%[1]s.lnk"
powershell -Command "$s = New-Object -ComObject WScript.Shell; $shortcut = $s.CreateShortcut('%%shortcut_path%%'); $shortcut.TargetPath = '%%PROGRAMFILES%%\%[1]s\%[1]s.exe'; $shortcut.Save()"
echo Installation complete.
pause
`

const posixTemplate = `#!/bin/sh
set -e
APP_NAME=%[1]s
HERE=$(cd "$(dirname "$0")" && pwd)
PREFIX="${PREFIX:-$HOME/.local}"
TARGET="$PREFIX/opt/$APP_NAME"
mkdir -p "$TARGET" "$PREFIX/bin"
cp -R "$HERE/." "$TARGET/"
rm -f "$TARGET/setup.sh" "$TARGET/setup.bat"
ln -sf "$TARGET/$APP_NAME" "$PREFIX/bin/$APP_NAME"
echo "Installed $APP_NAME into $TARGET"
`

// WindowsSetup renders setup.bat for appName.
func WindowsSetup(appName string) string {
	return strings.ReplaceAll(fmt.Sprintf(windowsTemplate, appName), "\n", "\r\n")
}

// PosixSetup renders setup.sh for appName.
func PosixSetup(appName string) string {
	return fmt.Sprintf(posixTemplate, shellquote.Join(appName))
}

func writeScripts(dest, appName string) error {
	if err := os.WriteFile(filepath.Join(dest, WindowsScript), []byte(WindowsSetup(appName)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", WindowsScript, err)
	}
	if err := os.WriteFile(filepath.Join(dest, PosixScript), []byte(PosixSetup(appName)), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", PosixScript, err)
	}
	return nil
}
