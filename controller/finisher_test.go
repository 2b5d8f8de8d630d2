package controller

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/cfm/securedrop-client/archive/archivetest"
	"github.com/cfm/securedrop-client/interfaces"
	"github.com/stretchr/testify/assert"
)

// checkingWriter records whether the work dir still existed when the status was written.
type checkingWriter struct {
	bytes.Buffer
	workDir          string
	workDirAtWriting bool
}

func (w *checkingWriter) Write(p []byte) (int, error) {
	_, err := os.Stat(w.workDir)
	w.workDirAtWriting = err == nil
	return w.Buffer.Write(p)
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func newTestFinisher() (*Finisher, *bytes.Buffer, *[]int) {
	var out bytes.Buffer
	var exits []int
	f := NewFinisher(testLogger())
	f.StatusWriter = &out
	f.Exit = func(code int) { exits = append(exits, code) }
	return f, &out, &exits
}

func TestFinisher_CleanupBeforeStatus(t *testing.T) {
	a := archivetest.Extracted(t, `{"export_method": "start-vm"}`, map[string]string{"a.txt": "a"})
	w := &checkingWriter{workDir: a.WorkDir()}

	f := NewFinisher(testLogger())
	f.StatusWriter = w
	var exits []int
	f.Exit = func(code int) { exits = append(exits, code) }

	f.Finish(a, interfaces.StatusStartVMSuccess, nil)

	assert.False(t, w.workDirAtWriting, "Work dir must be gone before the status is written")
	assert.Equal(t, "SUCCESS_START_VM\n", w.String())
	assert.Equal(t, []int{0}, exits)
}

func TestFinisher_Once(t *testing.T) {
	f, out, exits := newTestFinisher()
	closer := &closeRecorder{}
	f.SetLogger(testLogger(), closer)

	f.Finish(nil, interfaces.StatusUSBBadPassphrase, nil)
	f.Finish(nil, interfaces.StatusExportSuccess, nil)
	f.Finish(nil, "", errors.New("late"))

	assert.True(t, f.Finished())
	assert.Equal(t, "USB_BAD_PASSPHRASE\n", out.String())
	assert.Equal(t, []int{0}, *exits)
	assert.Equal(t, 1, closer.closed, "Log file is closed once, before exit")
}

func TestFinisher_StatusResolution(t *testing.T) {
	tests := []struct {
		name   string
		status interfaces.Status
		err    error
		want   string
	}{
		{"status wins", interfaces.StatusPrintSuccess, errors.New("ignored"), "PRINT_SUCCESS\n"},
		{"from tagged error", "", interfaces.NewStatusError(interfaces.StatusErrorUSBMount, errors.New("busy")), "ERROR_USB_MOUNT\n"},
		{"from plain error", "", errors.New("boom"), "ERROR_GENERIC\n"},
		{"nothing", "", nil, "ERROR_GENERIC\n"},
		{"invalid token", interfaces.Status("OK"), nil, "ERROR_GENERIC\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, out, exits := newTestFinisher()
			f.Finish(nil, tt.status, tt.err)

			assert.Equal(t, tt.want, out.String())
			assert.Equal(t, []int{0}, *exits)
		})
	}
}
