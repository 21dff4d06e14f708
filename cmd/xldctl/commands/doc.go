// Package commands implements the xldctl command tree. Every command is a
// one-shot call into the deployment engine shared with the Terraform
// provider; configuration comes from XLDCTL_* variables overridden by flags.
package commands
