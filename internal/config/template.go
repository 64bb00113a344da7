package config

// StarterConfig is written by -config-init
const StarterConfig = `{
  "version": "v1",
  "server": {
    "addr": ":8080",
    "baseURL": "http://localhost:8080"
  },
  "provider": {
    "kind": "oidc",
    "url": {"$env": "AUTH_PROVIDER_URL"},
    "publicKey": {"$env": "AUTH_PROVIDER_PUBLIC_KEY"},
    "scopes": ["openid", "email", "profile"]
  },
  "session": {
    "cookieName": "auth-token",
    "encryptionKey": {"$env": "AUTH_ENCRYPTION_KEY"},
    "maxAge": "168h"
  },
  "callback": {
    "errorPath": "/auth/auth-code-error",
    "defaultNext": "/",
    "requireRelativeNext": true,
    "timeout": "30s"
  },
  "storage": {
    "kind": "memory"
  }
}
`
