// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	InsufficientDiskId Id = iota + 1
	PackageInstallFailedId
	RuntimeInstallFailedId
	WorkspaceCreateFailedId
	CloneFailedId
	ImagePullFailedId
	ScriptWriteFailedId
	GuideWriteFailedId
	PermissionDeniedId
	ConfigLoadFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // documentation of the tool that failed
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal Markdown using the given glamour style.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("\n- " + string(link))
		}
		for _, link := range i.extLinks {
			md.WriteString("\n- " + string(link))
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	insufficientDiskIssue = &Issue{
		id: InsufficientDiskId,
		mdMsg: `
# Not enough free disk space!

The development image, the workspace build and the colcon install tree need
more room than the workspace filesystem has available.

## Things you can try:
- Free space on the drive that holds the workspace root
- On WSL, compact or grow the virtual disk:
~~~
PS> wsl --shutdown
PS> Optimize-VHD -Path ext4.vhdx -Mode Full
~~~
- Point the workspace at a larger filesystem in your config:
~~~cue
workspace: {
  root: "/mnt/data/robot_ws"
}
~~~
- Lower the threshold if you know the image is smaller:
~~~cue
preflight: {
  min_disk_gb: 30
}
~~~`,
		extLinks: []HttpLink{"https://learn.microsoft.com/windows/wsl/disk-space"},
	}

	packageInstallFailedIssue = &Issue{
		id: PackageInstallFailedId,
		mdMsg: `
# System package installation failed!

apt-get exited with an error while refreshing the package index or installing
the base packages.

## Things you can try:
- Check network access to the Ubuntu mirrors
- Repair an interrupted install and retry:
~~~
$ sudo dpkg --configure -a
$ sudo apt-get -f install
$ rosstrap
~~~
- Run with verbose mode to see the full apt output:
~~~
$ rosstrap --verbose
~~~`,
	}

	runtimeInstallFailedIssue = &Issue{
		id: RuntimeInstallFailedId,
		mdMsg: `
# Container runtime installation failed!

Docker could not be installed or its service could not be started.

## Things you can try:
- On WSL, make sure systemd is enabled in /etc/wsl.conf:
~~~ini
[boot]
systemd=true
~~~
- Install Docker manually and re-run; rosstrap skips the installer once the
  docker binary is on PATH:
~~~
$ curl -fsSL https://get.docker.com | sudo sh
$ rosstrap
~~~`,
		docLinks: []HttpLink{"https://docs.docker.com/engine/install/ubuntu/"},
	}

	workspaceCreateFailedIssue = &Issue{
		id: WorkspaceCreateFailedId,
		mdMsg: `
# Workspace directory could not be created!

The workspace root or one of its parents is not writable by the current user.

## Things you can try:
- Check ownership of the parent directory
- Choose a workspace root inside your home directory:
~~~cue
workspace: {
  root: "~/robot_ws"
}
~~~`,
	}

	cloneFailedIssue = &Issue{
		id: CloneFailedId,
		mdMsg: `
# Repository clone failed!

The workspace repository could not be cloned, or the clone did not produce the
expected directory.

## Things you can try:
- For private repositories over HTTPS, export a token:
~~~
$ export GITHUB_TOKEN=ghp_...
~~~
- For SSH URLs, make sure a key exists in ~/.ssh (id_ed25519, id_rsa or id_ecdsa)
- Remove a half-written directory and re-run:
~~~
$ rm -rf ~/robot_ws/robot_repo
$ rosstrap
~~~`,
	}

	imagePullFailedIssue = &Issue{
		id: ImagePullFailedId,
		mdMsg: `
# Image pull failed!

The development image could not be pulled. Nothing after this step can run
without it, so the bootstrap stopped here.

## Things you can try:
- Log in to the registry:
~~~
$ docker login ghcr.io
~~~
- If docker reports a permission error, start a new login session so the
  docker group membership takes effect:
~~~
$ newgrp docker
~~~
- Verify the image reference in your config:
~~~
$ rosstrap config show
~~~`,
		docLinks: []HttpLink{"https://docs.docker.com/reference/cli/docker/image/pull/"},
	}

	scriptWriteFailedIssue = &Issue{
		id: ScriptWriteFailedId,
		mdMsg: `
# Wrapper scripts could not be written!

## Things you can try:
- Check that the workspace root is writable
- Regenerate only the scripts and the guide:
~~~
$ rosstrap scripts
~~~`,
	}

	guideWriteFailedIssue = &Issue{
		id: GuideWriteFailedId,
		mdMsg: `
# Quick-start guide could not be written!

## Things you can try:
- Check that the workspace root is writable and not full
- Regenerate only the scripts and the guide:
~~~
$ rosstrap scripts
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

A step needed privileges the current session does not have.

## Things you can try:
- Make sure your user can run sudo:
~~~
$ sudo -v
~~~
- After a fresh Docker install, log out and back in (or run
  ` + "`wsl --shutdown`" + ` from Windows) so the docker group applies`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Configuration file locations:
- ` + "`--config <file>`" + `
- $XDG_CONFIG_HOME/rosstrap/config.cue (default ~/.config/rosstrap/config.cue)
- ./config.cue

## Things you can try:
- Write the default configuration and edit it:
~~~
$ rosstrap config init
~~~
- Remove the config file to use defaults`,
	}

	issues = map[Id]*Issue{
		insufficientDiskIssue.Id():      insufficientDiskIssue,
		packageInstallFailedIssue.Id():  packageInstallFailedIssue,
		runtimeInstallFailedIssue.Id():  runtimeInstallFailedIssue,
		workspaceCreateFailedIssue.Id(): workspaceCreateFailedIssue,
		cloneFailedIssue.Id():           cloneFailedIssue,
		imagePullFailedIssue.Id():       imagePullFailedIssue,
		scriptWriteFailedIssue.Id():     scriptWriteFailedIssue,
		guideWriteFailedIssue.Id():      guideWriteFailedIssue,
		permissionDeniedIssue.Id():      permissionDeniedIssue,
		configLoadFailedIssue.Id():      configLoadFailedIssue,
	}
)

// Values returns every catalog issue ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, iss := range issues {
		out = append(out, iss)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
