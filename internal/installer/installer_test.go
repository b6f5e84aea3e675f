package installer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	commands [][]string
	failOn   string // fail commands whose args contain this token
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	f.commands = append(f.commands, append([]string{name}, args...))
	if f.failOn != "" {
		for _, a := range args {
			if a == f.failOn {
				if f.err != nil {
					return "", f.err
				}
				return "", errors.New("command failed")
			}
		}
	}
	return "", nil
}

func (f *fakeRunner) find(token string) []string {
	for _, cmd := range f.commands {
		for _, a := range cmd {
			if a == token {
				return cmd
			}
		}
	}
	return nil
}

func newInstaller(r *fakeRunner) *Installer {
	return New(r, Options{
		Container:      "blog-wordpress",
		DBHost:         "blog-mariadb",
		DBUser:         "wordpress",
		CommandTimeout: 10 * time.Second,
		InstallTimeout: 60 * time.Second,
	}, zap.NewNop())
}

func installParams() InstallParams {
	return InstallParams{
		SitePath:      "demo",
		Domain:        "demo.example.com",
		DBName:        "demo_db",
		DBPassword:    "wp-secret",
		AdminUser:     "admin",
		AdminPassword: "Secret123!",
		AdminEmail:    "a@example.com",
		Locale:        "ja",
	}
}

func TestInstallCommandSequence(t *testing.T) {
	r := &fakeRunner{}
	i := newInstaller(r)

	require.NoError(t, i.Install(context.Background(), installParams()))

	mkdir := r.find("mkdir")
	require.NotNil(t, mkdir)
	assert.Contains(t, mkdir, "/var/www/html/demo")

	download := r.find("download")
	require.NotNil(t, download)
	assert.Contains(t, download, "--locale=ja")
	assert.Contains(t, download, "--path=/var/www/html/demo")
	assert.Contains(t, download, "--allow-root")

	configCreate := r.find("config")
	require.NotNil(t, configCreate)
	assert.Contains(t, configCreate, "--dbname=demo_db")
	assert.Contains(t, configCreate, "--dbuser=wordpress")
	assert.Contains(t, configCreate, "--dbpass=wp-secret")
	assert.Contains(t, configCreate, "--dbhost=blog-mariadb")
	assert.Contains(t, configCreate, "--dbprefix=demo_db_")

	install := r.find("install")
	require.NotNil(t, install)
	assert.Contains(t, install, "--url=https://demo.example.com")
	assert.Contains(t, install, "--admin_user=admin")
	// No title given: the domain stands in.
	assert.Contains(t, install, "--title=demo.example.com")

	chown := r.find("chown")
	require.NotNil(t, chown)
	assert.Contains(t, chown, "www-data:www-data")
}

func TestInstallFailsOnCoreDownloadError(t *testing.T) {
	r := &fakeRunner{failOn: "download"}
	i := newInstaller(r)

	err := i.Install(context.Background(), installParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download core")
	assert.Nil(t, r.find("install"), "install must not run after a failed download")
}

func TestInstallToleratesChownFailure(t *testing.T) {
	r := &fakeRunner{failOn: "chown"}
	i := newInstaller(r)

	assert.NoError(t, i.Install(context.Background(), installParams()))
}

func TestConfigureMailWritesSMTPOption(t *testing.T) {
	r := &fakeRunner{}
	i := newInstaller(r)

	err := i.ConfigureMail(context.Background(), MailParams{
		SitePath:  "demo",
		Domain:    "demo.example.com",
		FromEmail: "noreply@example.com",
		SMTPHost:  "mailserver",
		SMTPPort:  587,
	})
	require.NoError(t, err)

	pluginInstall := r.find("wp-mail-smtp")
	require.NotNil(t, pluginInstall)
	assert.Contains(t, pluginInstall, "--activate")

	option := r.find("option")
	require.NotNil(t, option)
	joined := strings.Join(option, " ")
	assert.Contains(t, joined, `"from_email":"noreply@example.com"`)
	assert.Contains(t, joined, `"host":"mailserver"`)
	assert.Contains(t, joined, `"port":587`)
	assert.Contains(t, joined, `"mailer":"smtp"`)
}

func TestConfigureMailFallsBackToActivate(t *testing.T) {
	r := &fakeRunner{failOn: "install"}
	i := newInstaller(r)

	err := i.ConfigureMail(context.Background(), MailParams{
		SitePath: "demo", Domain: "demo.example.com",
		FromEmail: "noreply@example.com", SMTPHost: "mailserver", SMTPPort: 587,
	})
	require.NoError(t, err)

	var sawActivateOnly bool
	for _, cmd := range r.commands {
		joined := strings.Join(cmd, " ")
		if strings.Contains(joined, "plugin activate wp-mail-smtp") {
			sawActivateOnly = true
		}
	}
	assert.True(t, sawActivateOnly, "expected plugin activate fallback after failed install")
}

func TestExists(t *testing.T) {
	r := &fakeRunner{}
	i := newInstaller(r)

	assert.True(t, i.Exists(context.Background(), "demo"))
	testCmd := r.find("test")
	require.NotNil(t, testCmd)
	assert.Contains(t, testCmd, "-d")
	assert.Contains(t, testCmd, "/var/www/html/demo")

	r2 := &fakeRunner{failOn: "test"}
	i2 := newInstaller(r2)
	assert.False(t, i2.Exists(context.Background(), "demo"))
}
