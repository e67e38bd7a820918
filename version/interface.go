/*
 * MIT License
 *
 * Copyright (c) 2023 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package version carries the build identity (release, build hash, date,
// author, license) injected at link time and surfaced by the CLI's
// version command and the stats export.
package version

import (
	"fmt"
	"path"
	"reflect"
	"strings"
)

// License names the license an application is distributed under.
type License string

const (
	License_MIT        License = "MIT License"
	License_Apache_v2  License = "Apache License 2.0"
	License_GNU_GPL_v3 License = "GNU GENERAL PUBLIC LICENSE v3"
	License_Unlicense  License = "The Unlicense"
)

// Version exposes the build identity.
type Version interface {
	GetPackage() string
	GetDescription() string
	GetRelease() string
	GetBuild() string
	GetDate() string
	GetAuthor() string
	GetPrefix() string
	GetRootPackagePath() string
	GetLicenseName() string

	// GetAppId returns "package/release (build)".
	GetAppId() string
	// GetHeader returns the one-line banner the CLI prints.
	GetHeader() string
	// GetInfo returns the multi-line build information block.
	GetInfo() string
}

// NewVersion builds a Version. rootPkg is any value from the main
// module; its package path anchors GetRootPackagePath the way the
// runtime sees it.
func NewVersion(license License, pkg, description, date, build, release, author, prefix string, rootPkg interface{}, _ int) Version {
	root := ""
	if t := reflect.TypeOf(rootPkg); t != nil {
		root = path.Dir(t.PkgPath())
	}
	if pkg == "" {
		pkg = path.Base(root)
	}
	if !strings.HasPrefix(release, "v") {
		release = "v" + release
	}
	return &model{
		license:     license,
		pkg:         pkg,
		description: description,
		date:        date,
		build:       build,
		release:     release,
		author:      author,
		prefix:      prefix,
		root:        root,
	}
}

type model struct {
	license     License
	pkg         string
	description string
	date        string
	build       string
	release     string
	author      string
	prefix      string
	root        string
}

func (m *model) GetPackage() string         { return m.pkg }
func (m *model) GetDescription() string     { return m.description }
func (m *model) GetRelease() string         { return m.release }
func (m *model) GetBuild() string           { return m.build }
func (m *model) GetDate() string            { return m.date }
func (m *model) GetAuthor() string          { return m.author }
func (m *model) GetPrefix() string          { return m.prefix }
func (m *model) GetRootPackagePath() string { return m.root }
func (m *model) GetLicenseName() string     { return string(m.license) }

func (m *model) GetAppId() string {
	return fmt.Sprintf("%s/%s (%s)", m.pkg, m.release, m.build)
}

func (m *model) GetHeader() string {
	return fmt.Sprintf("%s %s (build %s, %s)", m.pkg, m.release, m.build, m.date)
}

func (m *model) GetInfo() string {
	return fmt.Sprintf(
		"Package: %s\nDescription: %s\nRelease: %s\nBuild: %s\nDate: %s\nAuthor: %s\nLicense: %s\n",
		m.pkg, m.description, m.release, m.build, m.date, m.author, m.GetLicenseName(),
	)
}
