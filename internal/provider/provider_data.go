package provider

import "github.com/xldeploy/terraform-provider-xldeploy/internal/providerdata"

// ProviderData is an alias for the shared ProviderData type. The canonical
// definition lives in the providerdata package so that resource packages can
// import it without importing the provider.
type ProviderData = providerdata.ProviderData

// TargetConfigModel is an alias for the shared TargetConfigModel type.
type TargetConfigModel = providerdata.TargetConfigModel
