package usecase

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackops/stackops/internal/domain"
)

func TestTranslator_Translate(t *testing.T) {
	tests := []struct {
		name          string
		step          string
		wantMethod    string
		wantPath      string
		wantBody      string
		wantGenerated bool
	}{
		{
			name:       "create user with defaults",
			step:       `{"tool":"graph.users.create","input":{"displayName":"Alice Dupont","userPrincipalName":"alice@contoso.com","department":"Sales"}}`,
			wantMethod: http.MethodPost,
			wantPath:   "/users",
			wantBody: `{"accountEnabled":true,"displayName":"Alice Dupont","mailNickname":"alice","userPrincipalName":"alice@contoso.com",
				"department":"Sales","usageLocation":"FR","passwordProfile":{"password":"Generated-Pass-42!","forceChangePasswordNextSignIn":true}}`,
			wantGenerated: true,
		},
		{
			name:       "create user with explicit fields",
			step:       `{"tool":"graph.users.create","input":{"displayName":"Bob","userPrincipalName":"bob@contoso.com","mailNickname":"bobby","jobTitle":"Engineer","usageLocation":"US","passwordProfile":{"password":"S3cret!pass","forceChangePasswordNextSignIn":false}}}`,
			wantMethod: http.MethodPost,
			wantPath:   "/users",
			wantBody: `{"accountEnabled":true,"displayName":"Bob","mailNickname":"bobby","userPrincipalName":"bob@contoso.com",
				"jobTitle":"Engineer","usageLocation":"US","passwordProfile":{"password":"S3cret!pass","forceChangePasswordNextSignIn":false}}`,
		},
		{
			name:       "add group member",
			step:       `{"tool":"graph.groups.addMember","input":{"group":"Sales-EU","userPrincipalName":"alice@contoso.com"}}`,
			wantMethod: http.MethodPost,
			wantPath:   "/groups/Sales-EU/members/$ref",
			wantBody:   `{"@odata.id":"https://graph.microsoft.com/v1.0/users/alice@contoso.com"}`,
		},
		{
			name:       "group name is path escaped",
			step:       `{"tool":"graph.groups.addMember","input":{"group":"Sales EU/West","userPrincipalName":"alice@contoso.com"}}`,
			wantMethod: http.MethodPost,
			wantPath:   "/groups/Sales%20EU%2FWest/members/$ref",
			wantBody:   `{"@odata.id":"https://graph.microsoft.com/v1.0/users/alice@contoso.com"}`,
		},
		{
			name:       "assign licenses",
			step:       `{"tool":"graph.licenses.assign","input":{"userPrincipalName":"alice@contoso.com","skus":["E3","EMS"]}}`,
			wantMethod: http.MethodPost,
			wantPath:   "/users/alice@contoso.com/assignLicense",
			wantBody:   `{"addLicenses":[{"skuId":"E3"},{"skuId":"EMS"}],"removeLicenses":[]}`,
		},
		{
			name:       "assign single license string",
			step:       `{"tool":"graph.licenses.assign","input":{"userPrincipalName":"alice@contoso.com","skus":"E3"}}`,
			wantMethod: http.MethodPost,
			wantPath:   "/users/alice@contoso.com/assignLicense",
			wantBody:   `{"addLicenses":[{"skuId":"E3"}],"removeLicenses":[]}`,
		},
		{
			name:       "disable user",
			step:       `{"tool":"graph.users.disable","input":{"userPrincipalName":"bob@contoso.com"}}`,
			wantMethod: http.MethodPatch,
			wantPath:   "/users/bob@contoso.com",
			wantBody:   `{"accountEnabled":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var step domain.Step
			require.NoError(t, json.Unmarshal([]byte(tt.step), &step))

			translation, err := fixedPasswordTranslator().Translate(step)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMethod, translation.Request.Method)
			assert.Equal(t, tt.wantPath, translation.Request.Path)
			assert.Equal(t, tt.wantGenerated, translation.GeneratedPassword)

			body, err := json.Marshal(translation.Request.Body)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantBody, string(body))
		})
	}
}

func TestTranslator_ConfiguredUsageLocation(t *testing.T) {
	translator := NewTranslator("DE", "https://graph.example.test/beta")
	translator.passwords = func() (string, error) { return "x", nil }

	step, err := domain.NewStep(&domain.CreateUserInput{DisplayName: "Eve", UserPrincipalName: "eve@contoso.com"})
	require.NoError(t, err)

	translation, err := translator.Translate(step)
	require.NoError(t, err)
	body, _ := json.Marshal(translation.Request.Body)
	assert.Contains(t, string(body), `"usageLocation":"DE"`)

	member, err := domain.NewStep(&domain.AddGroupMemberInput{Group: "g", UserPrincipalName: "eve@contoso.com"})
	require.NoError(t, err)
	translation, err = translator.Translate(member)
	require.NoError(t, err)
	body, _ = json.Marshal(translation.Request.Body)
	assert.JSONEq(t, `{"@odata.id":"https://graph.example.test/beta/users/eve@contoso.com"}`, string(body))
}

func TestTranslator_UnknownTool(t *testing.T) {
	_, err := fixedPasswordTranslator().Translate(domain.Step{Tool: "graph.users.delete", Input: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrUnknownTool)
}

func TestGenerateTemporaryPassword(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("every class is present and length is fixed", prop.ForAll(
		func(_ int) bool {
			password, err := generateTemporaryPassword()
			if err != nil || len(password) != passwordLength {
				return false
			}
			for _, class := range []string{lowerChars, upperChars, digitChars, symbolChars} {
				if !strings.ContainsAny(password, class) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)

	first, err := generateTemporaryPassword()
	require.NoError(t, err)
	second, err := generateTemporaryPassword()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
