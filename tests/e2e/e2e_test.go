//go:build e2e
// +build e2e

package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const siteCompose = `services:
  wordpress:
    image: wordpress:php8.2-apache
    container_name: wp_%s
  db:
    image: mariadb:11
`

type workspace struct {
	binary string
	root   string
	env    []string
}

func buildCLI(t *testing.T) *workspace {
	t.Helper()

	root := t.TempDir()
	binary := filepath.Join(root, "site-optimizer")

	t.Log("Building site-optimizer...")
	build := exec.Command("go", "build", "-o", binary, "../../cmd/site-optimizer")
	if output, err := build.CombinedOutput(); err != nil {
		t.Fatalf("Build failed: %v\n%s", err, output)
	}
	t.Log("✓ Built CLI")

	w := &workspace{binary: binary, root: root}
	w.env = append(os.Environ(),
		"DATA_DIR="+filepath.Join(root, "data"),
		"SEARCH_DIR="+filepath.Join(root, "sites"),
		"CONFIG_DIR="+filepath.Join(root, "config"),
		"REPORTS_DIR="+filepath.Join(root, "reports"),
		"STORAGE_ENABLED=false",
		"DRY_RUN=true",
	)
	return w
}

func (w *workspace) run(t *testing.T, args ...string) string {
	t.Helper()
	args = append([]string{"--env-file", filepath.Join(w.root, "missing.env")}, args...)
	cmd := exec.Command(w.binary, args...)
	cmd.Env = w.env
	output, err := cmd.CombinedOutput()
	t.Logf("$ site-optimizer %s\n%s", strings.Join(args, " "), output)
	if err != nil {
		t.Fatalf("site-optimizer %s failed: %v", strings.Join(args, " "), err)
	}
	return string(output)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestImportClassifyDeployDryRun(t *testing.T) {
	w := buildCLI(t)

	for _, site := range []string{"shop.example.com", "blog.example.com"} {
		writeFile(t, filepath.Join(w.root, "sites", site, "docker-compose.yml"), fmt.Sprintf(siteCompose, site))
	}
	for tier := 1; tier <= 3; tier++ {
		for _, base := range []string{"mpm_prefork.conf", "php-fpm-pool.conf", "php-limits.ini"} {
			writeFile(t, filepath.Join(w.root, "config", fmt.Sprintf("%s.tier%d", base, tier)), "# tier config\n")
		}
	}

	sitesCSV := filepath.Join(w.root, "sites.csv")
	writeFile(t, sitesCSV, "domain,server,container_name\nshop.example.com,web01,wp_shop\nblog.example.com,web01,wp_blog\n")

	out := w.run(t, "inventory", "import", "-f", sitesCSV)
	if !strings.Contains(out, "Imported 2 sites") {
		t.Error("import should report 2 sites")
	}

	out = w.run(t, "classify", "auto")
	if !strings.Contains(out, "Classification complete") {
		t.Error("classify auto should complete")
	}

	out = w.run(t, "deploy", "execute", "--tier", "3")
	if !strings.Contains(out, "DRY RUN") {
		t.Error("deploy should default to a dry run")
	}

	compose, err := os.ReadFile(filepath.Join(w.root, "sites", "shop.example.com", "docker-compose.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(compose), "mpm_prefork.conf") {
		t.Error("dry run must not modify docker-compose.yml")
	}

	out = w.run(t, "deploy", "history")
	if !strings.Contains(out, "Tier 3") {
		t.Error("history should list the dry-run deployment")
	}

	out = w.run(t, "report", "--format", "markdown")
	if !strings.Contains(out, "report generated") {
		t.Error("report should be generated")
	}

	t.Log("✓ Import, classify, deploy and report succeeded")
}
