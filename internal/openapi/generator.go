package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Document builds the OpenAPI 3.1 description of the Keygate HTTP API.
// baseURL is the externally reachable origin served to clients.
func Document(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Keygate API",
			Description: "Login key validation and management for injector client apps.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	addSchemas(doc)

	doc.Paths = openapi3.NewPaths()
	addPublicPaths(doc)
	addSystemPaths(doc)
	addResellerPaths(doc)

	return doc
}

func addSchemas(doc *openapi3.T) {
	doc.Components.Schemas["Verdict"] = objectSchema(map[string]*openapi3.SchemaRef{
		"status":  stringSchema(""),
		"valid":   boolSchema(),
		"message": stringSchema(""),
	})

	doc.Components.Schemas["LoginKey"] = objectSchema(map[string]*openapi3.SchemaRef{
		"id":          intSchema("int64"),
		"key":         stringSchema(""),
		"injector":    intSchema("int64"),
		"resellerId":  intSchema("int64"),
		"expires":     stringSchema("date-time"),
		"maxDevices":  intSchema("int64"),
		"deviceCount": intSchema("int64"),
		"devicesUsed": intSchema("int64"),
		"used":        intSchema("int64"),
		"blocked":     boolSchema(),
		"created":     stringSchema("date-time"),
	})

	doc.Components.Schemas["Injector"] = objectSchema(map[string]*openapi3.SchemaRef{
		"id":          intSchema("int64"),
		"name":        stringSchema(""),
		"redirectUrl": stringSchema(""),
		"status":      boolSchema(),
		"created":     stringSchema("date-time"),
	})

	doc.Components.Schemas["Reseller"] = objectSchema(map[string]*openapi3.SchemaRef{
		"id":        intSchema("int64"),
		"username":  stringSchema(""),
		"credits":   intSchema("int64"),
		"lastLogin": stringSchema("date-time"),
		"created":   stringSchema("date-time"),
	})

	doc.Components.Schemas["ErrorResponse"] = objectSchema(map[string]*openapi3.SchemaRef{
		"error": objectSchema(map[string]*openapi3.SchemaRef{
			"code":    intSchema("int32"),
			"message": stringSchema(""),
		}),
	})
}

func addPublicPaths(doc *openapi3.T) {
	verifyBody := requestBody(objectSchema(map[string]*openapi3.SchemaRef{
		"key":      stringSchema(""),
		"deviceId": stringSchema(""),
	}).Value)

	verifyWithInjectorBody := requestBody(objectSchema(map[string]*openapi3.SchemaRef{
		"key":        stringSchema(""),
		"deviceId":   stringSchema(""),
		"injectorId": intSchema("int64"),
	}).Value)

	doc.Paths.Set("/api/verifyLogin", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "verifyLogin",
			Summary:     "Validate a key against a device",
			Tags:        []string{"validation"},
			RequestBody: verifyBody,
			Responses:   verdictResponses(),
		},
	})

	doc.Paths.Set("/api/verifyLoginWithInjector", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "verifyLoginWithInjector",
			Summary:     "Validate a key against a device for a specific injector",
			Tags:        []string{"validation"},
			RequestBody: verifyWithInjectorBody,
			Responses:   verdictResponses(),
		},
	})

	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "healthz",
			Summary:     "Liveness probe",
			Tags:        []string{"health"},
			Responses:   okResponse("Process is alive"),
		},
	})

	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "readyz",
			Summary:     "Readiness probe",
			Tags:        []string{"health"},
			Responses:   okResponse("Storage is reachable"),
		},
	})
}

func addSystemPaths(doc *openapi3.T) {
	adminOnly := openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Paths.Set("/api/v1/system/admin/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "adminLogin",
			Summary:     "Authenticate an admin and issue a session token",
			Tags:        []string{"system"},
			Responses:   okResponse("Session token issued"),
		},
	})

	doc.Paths.Set("/api/v1/system/reseller/session", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "resellerLogin",
			Summary:     "Authenticate a reseller and issue a session token",
			Tags:        []string{"system"},
			Responses:   okResponse("Session token issued"),
		},
	})

	doc.Paths.Set("/api/v1/system/key", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listKeys",
			Summary:     "List keys, optionally filtered by injector",
			Tags:        []string{"keys"},
			Security:    &adminOnly,
			Responses:   refResponse("LoginKey", "Keys", true),
		},
		Post: &openapi3.Operation{
			OperationID: "createKey",
			Summary:     "Create a key",
			Tags:        []string{"keys"},
			Security:    &adminOnly,
			Responses:   refResponse("LoginKey", "Created key", false),
		},
	})

	doc.Paths.Set("/api/v1/system/key/{keyId}", &openapi3.PathItem{
		Parameters: pathID("keyId"),
		Get: &openapi3.Operation{
			OperationID: "getKey",
			Summary:     "Fetch one key",
			Tags:        []string{"keys"},
			Security:    &adminOnly,
			Responses:   refResponse("LoginKey", "Key", false),
		},
		Delete: &openapi3.Operation{
			OperationID: "deleteKey",
			Summary:     "Delete a key and its device ledger",
			Tags:        []string{"keys"},
			Security:    &adminOnly,
			Responses:   okResponse("Key deleted"),
		},
	})

	doc.Paths.Set("/api/v1/system/key/{keyId}/block", &openapi3.PathItem{
		Parameters: pathID("keyId"),
		Post: &openapi3.Operation{
			OperationID: "blockKey",
			Summary:     "Block a key",
			Tags:        []string{"keys"},
			Security:    &adminOnly,
			Responses:   okResponse("Key blocked"),
		},
	})

	doc.Paths.Set("/api/v1/system/key/{keyId}/unblock", &openapi3.PathItem{
		Parameters: pathID("keyId"),
		Post: &openapi3.Operation{
			OperationID: "unblockKey",
			Summary:     "Unblock a key",
			Tags:        []string{"keys"},
			Security:    &adminOnly,
			Responses:   okResponse("Key unblocked"),
		},
	})

	doc.Paths.Set("/api/v1/system/injector", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listInjectors",
			Summary:     "List injectors",
			Tags:        []string{"injectors"},
			Security:    &adminOnly,
			Responses:   refResponse("Injector", "Injectors", true),
		},
		Post: &openapi3.Operation{
			OperationID: "createInjector",
			Summary:     "Register an injector",
			Tags:        []string{"injectors"},
			Security:    &adminOnly,
			Responses:   refResponse("Injector", "Created injector", false),
		},
	})

	doc.Paths.Set("/api/v1/system/reseller", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listResellers",
			Summary:     "List resellers",
			Tags:        []string{"resellers"},
			Security:    &adminOnly,
			Responses:   refResponse("Reseller", "Resellers", true),
		},
		Post: &openapi3.Operation{
			OperationID: "createReseller",
			Summary:     "Create a reseller account",
			Tags:        []string{"resellers"},
			Security:    &adminOnly,
			Responses:   refResponse("Reseller", "Created reseller", false),
		},
	})

	doc.Paths.Set("/api/v1/system/stats", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "stats",
			Summary:     "Dashboard counters",
			Tags:        []string{"system"},
			Security:    &adminOnly,
			Responses:   okResponse("Aggregate counts"),
		},
	})
}

func addResellerPaths(doc *openapi3.T) {
	resellerOnly := openapi3.SecurityRequirements{{"bearerAuth": {}}}

	doc.Paths.Set("/api/v1/reseller/key", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listOwnKeys",
			Summary:     "List the authenticated reseller's keys",
			Tags:        []string{"reseller"},
			Security:    &resellerOnly,
			Responses:   refResponse("LoginKey", "Keys", true),
		},
		Post: &openapi3.Operation{
			OperationID: "createOwnKey",
			Summary:     "Create a key, debiting the credit cost",
			Tags:        []string{"reseller"},
			Security:    &resellerOnly,
			Responses:   refResponse("LoginKey", "Created key", false),
		},
	})

	doc.Paths.Set("/api/v1/reseller/profile", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "resellerProfile",
			Summary:     "The authenticated reseller's own account",
			Tags:        []string{"reseller"},
			Security:    &resellerOnly,
			Responses:   refResponse("Reseller", "Account", false),
		},
	})
}

// ---------------------------------------------------------------------------
// Schema construction helpers
// ---------------------------------------------------------------------------

func objectSchema(props map[string]*openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
		},
	}
}

func stringSchema(format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: format},
	}
}

func intSchema(format string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: format},
	}
}

func boolSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}},
	}
}

func requestBody(schema *openapi3.Schema) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchema(schema),
	}
}

func pathID(name string) openapi3.Parameters {
	return openapi3.Parameters{
		{
			Value: &openapi3.Parameter{
				Name:     name,
				In:       "path",
				Required: true,
				Schema:   intSchema("int64"),
			},
		},
	}
}

func verdictResponses() *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set("200", jsonResponse("Validation verdict", "#/components/schemas/Verdict"))
	responses.Set("400", jsonResponse("Missing or malformed fields", "#/components/schemas/Verdict"))
	return responses
}

func refResponse(schemaName, description string, list bool) *openapi3.Responses {
	ref := "#/components/schemas/" + schemaName
	responses := openapi3.NewResponses()
	if list {
		responses.Set("200", &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(description).
				WithJSONSchema(&openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"resource": {
							Value: &openapi3.Schema{
								Type:  &openapi3.Types{"array"},
								Items: &openapi3.SchemaRef{Ref: ref},
							},
						},
					},
				}),
		})
	} else {
		responses.Set("200", jsonResponse(description, ref))
	}
	return responses
}

func jsonResponse(description, ref string) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(&openapi3.SchemaRef{Ref: ref})),
	}
}

func okResponse(description string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set("200", &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(description),
	})
	return responses
}
