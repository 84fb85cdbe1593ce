package deployer

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/opscart/site-optimizer/pkg/fsutil"
)

const (
	// ComposeFile is the per-site container definition.
	ComposeFile = "docker-compose.yml"

	// BackupSuffix is appended to ComposeFile for the one-time backup.
	BackupSuffix = ".bak"

	// WordPressPrefix marks the container_name of the service that receives the mounts.
	WordPressPrefix = "wp_"

	// configuredMarker is the mount that shows a site was tiered before.
	configuredMarker = "mpm_prefork.conf:/etc/apache2/mods-available/mpm_prefork.conf"
)

// mount binds a file copied into the site directory to its path in the container
type mount struct {
	file      string
	container string
}

func (m mount) String() string {
	return "./" + m.file + ":" + m.container
}

// tierMounts are appended to the WordPress service in this order.
var tierMounts = []mount{
	{file: apacheFile, container: "/etc/apache2/mods-available/mpm_prefork.conf"},
	{file: phpFPMFile, container: "/usr/local/etc/php-fpm.d/www.conf"},
	{file: phpLimitsFile, container: "/usr/local/etc/php/conf.d/99-limits.ini"},
}

// composeDoc is a parsed compose file. Working on the node tree keeps key
// order and comments intact when the file is written back.
type composeDoc struct {
	path string
	mode os.FileMode
	root yaml.Node
}

func loadCompose(path string) (*composeDoc, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}

	doc := &composeDoc{path: path, mode: info.Mode().Perm()}
	if err := yaml.Unmarshal(data, &doc.root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCompose, path, err)
	}
	if doc.services() == nil {
		return nil, fmt.Errorf("%w: %s has no services map", ErrInvalidCompose, path)
	}
	return doc, nil
}

func (c *composeDoc) services() *yaml.Node {
	if c.root.Kind != yaml.DocumentNode || len(c.root.Content) == 0 {
		return nil
	}
	services := mappingValue(c.root.Content[0], "services")
	if services == nil || services.Kind != yaml.MappingNode {
		return nil
	}
	return services
}

// wordPressService returns the first service whose container_name carries
// the WordPress prefix, or nil.
func (c *composeDoc) wordPressService() *yaml.Node {
	services := c.services()
	if services == nil {
		return nil
	}
	for i := 1; i < len(services.Content); i += 2 {
		svc := resolveAlias(services.Content[i])
		name := mappingValue(svc, "container_name")
		if name != nil && name.Kind == yaml.ScalarNode && strings.HasPrefix(name.Value, WordPressPrefix) {
			return svc
		}
	}
	return nil
}

// applyTierMounts drops any volume that already targets one of the tier
// container paths and appends the tier mounts.
//
// A volumes list reached through an alias or a merge key is shared with
// other services, so it is copied into a list owned by svc instead.
func applyTierMounts(svc *yaml.Node) error {
	var volumes *yaml.Node
	if i := keyIndex(svc, "volumes"); i >= 0 && svc.Content[i+1].Kind != yaml.AliasNode {
		volumes = svc.Content[i+1]
	}

	if volumes == nil {
		shared := mappingValue(svc, "volumes")
		switch {
		case shared == nil, shared.Kind == yaml.ScalarNode && shared.Tag == "!!null":
			volumes = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		case shared.Kind == yaml.SequenceNode:
			volumes = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: shared.Style}
			for _, item := range shared.Content {
				volumes.Content = append(volumes.Content, copyNode(item))
			}
		default:
			return fmt.Errorf("%w: volumes of the WordPress service is a %s, not a list", ErrInvalidCompose, kindName(shared.Kind))
		}
		setMappingValue(svc, "volumes", volumes)
	}

	switch {
	case volumes.Kind == yaml.ScalarNode && volumes.Tag == "!!null":
		*volumes = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	case volumes.Kind != yaml.SequenceNode:
		return fmt.Errorf("%w: volumes of the WordPress service is a %s, not a list", ErrInvalidCompose, kindName(volumes.Kind))
	}

	kept := make([]*yaml.Node, 0, len(volumes.Content)+len(tierMounts))
	for _, v := range volumes.Content {
		if targetsTierPath(nodeText(v)) {
			continue
		}
		kept = append(kept, v)
	}
	for _, m := range tierMounts {
		kept = append(kept, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.String()})
	}
	volumes.Content = kept
	return nil
}

func targetsTierPath(volume string) bool {
	for _, m := range tierMounts {
		if strings.Contains(volume, m.container) {
			return true
		}
	}
	return false
}

func (c *composeDoc) write() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&c.root); err != nil {
		return errors.Annotatef(err, "encoding %s", c.path)
	}
	if err := enc.Close(); err != nil {
		return errors.Trace(err)
	}
	return fsutil.WriteFileAtomic(c.path, buf.Bytes(), c.mode)
}

// mappingValue returns the value for key in a mapping. Keys set directly win
// over keys pulled in with "<<"; within a merge list earlier entries win.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	node = resolveAlias(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	if i := keyIndex(node, key); i >= 0 {
		return resolveAlias(node.Content[i+1])
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if !isMergeKey(node.Content[i]) {
			continue
		}
		merged := resolveAlias(node.Content[i+1])
		sources := []*yaml.Node{merged}
		if merged != nil && merged.Kind == yaml.SequenceNode {
			sources = merged.Content
		}
		for _, src := range sources {
			if v := mappingValue(src, key); v != nil {
				return v
			}
		}
	}
	return nil
}

// keyIndex is the position of key among the direct keys of a mapping, or -1.
func keyIndex(node *yaml.Node, key string) int {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if !isMergeKey(node.Content[i]) && node.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func setMappingValue(node *yaml.Node, key string, value *yaml.Node) {
	if i := keyIndex(node, key); i >= 0 {
		node.Content[i+1] = value
		return
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

func isMergeKey(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && (node.Tag == "!!merge" || node.Value == "<<")
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

// copyNode deep-copies node without its anchor, so the copy can be written
// next to the original.
func copyNode(node *yaml.Node) *yaml.Node {
	out := *node
	out.Anchor = ""
	out.Content = make([]*yaml.Node, len(node.Content))
	for i, child := range node.Content {
		out.Content[i] = copyNode(child)
	}
	return &out
}

func kindName(kind yaml.Kind) string {
	switch kind {
	case yaml.MappingNode:
		return "map"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "document"
}

// nodeText flattens the scalars under node, so long-form volume entries
// (source/target maps) are matched like the short string form.
func nodeText(node *yaml.Node) string {
	node = resolveAlias(node)
	if node == nil {
		return ""
	}
	if node.Kind == yaml.ScalarNode {
		return node.Value
	}
	parts := make([]string, 0, len(node.Content))
	for _, child := range node.Content {
		parts = append(parts, nodeText(child))
	}
	return strings.Join(parts, " ")
}

// hasWordPressContainer reports whether the compose file at path defines a
// WordPress service. Unreadable or malformed files count as no.
func hasWordPressContainer(path string) bool {
	doc, err := loadCompose(path)
	if err != nil {
		return false
	}
	return doc.wordPressService() != nil
}
