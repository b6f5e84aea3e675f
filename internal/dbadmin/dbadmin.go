// Package dbadmin administers databases of the managed target systems by
// driving the MariaDB client inside the target's container.
package dbadmin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kumahost/portal/wordpress-service/internal/models"
	"github.com/kumahost/portal/wordpress-service/internal/runner"
)

// TargetBlog is the blog target system (WordPress MariaDB server).
const TargetBlog = "blog"

// identifierPattern constrains SQL identifiers. Validation at the API layer
// should already reject anything else; this is the last line of defense
// before string-built SQL.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var allowedCharsets = map[string]bool{
	"utf8mb4": true,
	"utf8":    true,
	"latin1":  true,
}

var allowedCollations = map[string]bool{
	"utf8mb4_unicode_ci": true,
	"utf8mb4_general_ci": true,
	"utf8_general_ci":    true,
	"latin1_swedish_ci":  true,
}

// Target describes how to reach one target system's database server.
type Target struct {
	Container string
	Binary    string
	User      string
	Password  string
}

// Admin creates and drops databases on managed target systems.
type Admin struct {
	runner  runner.Runner
	targets map[string]Target
	log     *zap.Logger
}

func New(r runner.Runner, targets map[string]Target, log *zap.Logger) *Admin {
	return &Admin{runner: r, targets: targets, log: log}
}

func (a *Admin) target(name string) (Target, error) {
	t, ok := a.targets[name]
	if !ok {
		return Target{}, fmt.Errorf("unknown target system: %s", name)
	}
	return t, nil
}

func sanitizeIdentifier(identifier string) (string, error) {
	if !identifierPattern.MatchString(identifier) {
		return "", fmt.Errorf("invalid identifier %q: must contain only alphanumeric characters and underscores, and start with a letter or underscore", identifier)
	}
	if len(identifier) > 64 {
		return "", fmt.Errorf("identifier %q too long (max 64 characters)", identifier)
	}
	return identifier, nil
}

func (a *Admin) exec(ctx context.Context, t Target, sql string) (string, error) {
	args := []string{"exec", t.Container, t.Binary, "-u", t.User}
	if t.Password != "" {
		args = append(args, "-p"+t.Password)
	}
	args = append(args, "-N", "-B", "-e", sql)
	return a.runner.Run(ctx, "docker", args...)
}

// CreateDatabase creates a database on the target system. When createUser is
// false the pre-provisioned application user of the target is reused.
func (a *Admin) CreateDatabase(ctx context.Context, name, targetSystem, charset, collation string, createUser bool) error {
	t, err := a.target(targetSystem)
	if err != nil {
		return err
	}
	dbName, err := sanitizeIdentifier(name)
	if err != nil {
		return err
	}
	if !allowedCharsets[charset] {
		return fmt.Errorf("unsupported charset: %s", charset)
	}
	if !allowedCollations[collation] {
		return fmt.Errorf("unsupported collation: %s", collation)
	}
	if createUser {
		return fmt.Errorf("dedicated database users are not supported for target %s", targetSystem)
	}

	sql := fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET %s COLLATE %s;", dbName, charset, collation)
	if _, err := a.exec(ctx, t, sql); err != nil {
		return fmt.Errorf("create database %s on %s: %w", dbName, targetSystem, err)
	}

	a.log.Info("database created",
		zap.String("database", dbName),
		zap.String("target", targetSystem))
	return nil
}

// DropDatabase drops a database on the target system.
func (a *Admin) DropDatabase(ctx context.Context, name, targetSystem string) error {
	t, err := a.target(targetSystem)
	if err != nil {
		return err
	}
	dbName, err := sanitizeIdentifier(name)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("DROP DATABASE IF EXISTS `%s`;", dbName)
	if _, err := a.exec(ctx, t, sql); err != nil {
		return fmt.Errorf("drop database %s on %s: %w", dbName, targetSystem, err)
	}

	a.log.Info("database dropped",
		zap.String("database", dbName),
		zap.String("target", targetSystem))
	return nil
}

// ListDatabases lists the user databases of a target system with charset,
// collation and on-disk size.
func (a *Admin) ListDatabases(ctx context.Context, targetSystem string) ([]models.DatabaseInfo, error) {
	t, err := a.target(targetSystem)
	if err != nil {
		return nil, err
	}

	sql := `SELECT s.SCHEMA_NAME, s.DEFAULT_CHARACTER_SET_NAME, s.DEFAULT_COLLATION_NAME,
		ROUND(COALESCE(SUM(tb.DATA_LENGTH + tb.INDEX_LENGTH), 0) / 1024 / 1024, 2)
		FROM information_schema.SCHEMATA s
		LEFT JOIN information_schema.TABLES tb ON s.SCHEMA_NAME = tb.TABLE_SCHEMA
		WHERE s.SCHEMA_NAME NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		GROUP BY s.SCHEMA_NAME, s.DEFAULT_CHARACTER_SET_NAME, s.DEFAULT_COLLATION_NAME
		ORDER BY s.SCHEMA_NAME;`

	out, err := a.exec(ctx, t, sql)
	if err != nil {
		return nil, fmt.Errorf("list databases on %s: %w", targetSystem, err)
	}

	var dbs []models.DatabaseInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			continue
		}
		size, _ := strconv.ParseFloat(fields[3], 64)
		dbs = append(dbs, models.DatabaseInfo{
			Name:      fields[0],
			Charset:   fields[1],
			Collation: fields[2],
			SizeMB:    size,
		})
	}
	return dbs, nil
}
