/*
Copyright Trust Data Format Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package controller assembles the REST handlers exposed by the KAS.
package controller

import (
	"github.com/trustdataformat/kas-go/pkg/controller/rest"
	"github.com/trustdataformat/kas-go/pkg/controller/rest/kas"
	"github.com/trustdataformat/kas-go/pkg/service"
)

// GetRESTHandlers returns all REST handlers provided by controller.
func GetRESTHandlers(svc *service.Service) []rest.Handler {
	return kas.New(svc).GetRESTHandlers()
}
