package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// registerOpenAPIRoutes 提供 /openapi 与 /docs/redoc
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/redoc", serveRedoc)
	engine.GET("/docs/ui", serveSwaggerUI)
}

func serveOpenAPI(c *gin.Context) {
	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.File("docs/api/openapi.yaml")
}

func serveRedoc(c *gin.Context) {
	// 优先使用本地 redoc 资源，离线可用；否则回退到 CDN
	scriptTag := "<script src=\"https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js\"></script>"
	note := "<div style=\"position:fixed;top:8px;right:8px;background:#fffae6;border:1px solid #f0e6b4;padding:6px 10px;border-radius:6px;font:12px/1.2 -apple-system,Segoe UI,Helvetica,Arial\">CDN fallback。离线环境请放置 static/vendors/redoc/redoc.standalone.js</div>"
	if _, err := os.Stat("static/vendors/redoc/redoc.standalone.js"); err == nil {
		scriptTag = "<script src=\"/static/vendors/redoc/redoc.standalone.js\"></script>"
		note = ""
	}

	html := `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Pulse Server API - Redoc</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
      body{margin:0;padding:0;background:#ffffff;color:#0f172a;font-family:-apple-system,Segoe UI,Helvetica,Arial,sans-serif}
      .topbar{position:fixed;top:0;left:0;right:0;height:48px;display:flex;align-items:center;justify-content:space-between;padding:0 12px;background:linear-gradient(90deg,#ffffff,#f8fafc);border-bottom:1px solid #e5e7eb;z-index:9999}
      .brand{font-weight:600;letter-spacing:.2px;color:#0f172a}
      .nav a{color:#0f172a;text-decoration:none;margin-left:12px;padding:6px 10px;border-radius:6px;border:1px solid #d1d5db;background:#f8fafc}
      .nav a:hover{border-color:#94a3b8;cursor:pointer}
      .wrap{height:100vh;margin-top:48px;background:#ffffff}
    </style>
  </head>
  <body>
    <div class="topbar">
      <div class="brand">Pulse Server API</div>
      <div class="nav">
        <a href="/openapi" target="_blank">OpenAPI YAML</a>
        <a href="/docs/redoc">Redoc</a>
        <a href="/docs/ui">Swagger UI</a>
      </div>
    </div>
    <div class="redoc-wrap wrap"></div>` + note + `
    ` + scriptTag + `
    <script>
      Redoc.init('/openapi', { expandResponses: '200,201' }, document.querySelector('.redoc-wrap'));
    </script>
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func serveSwaggerUI(c *gin.Context) {
	// 使用本地 swagger-ui-dist（若存在），否则回退 CDN
	cssHref := "https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"
	jsBundle := "https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"
	if _, err := os.Stat("static/vendors/swagger-ui/swagger-ui.css"); err == nil {
		if _, err2 := os.Stat("static/vendors/swagger-ui/swagger-ui-bundle.js"); err2 == nil {
			cssHref = "/static/vendors/swagger-ui/swagger-ui.css"
			jsBundle = "/static/vendors/swagger-ui/swagger-ui-bundle.js"
		}
	}

	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Pulse Server API - Swagger UI</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <link rel="stylesheet" href="` + cssHref + `">
    <style>
      body{margin:0;background:#ffffff}
      .topbar{position:fixed;top:0;left:0;right:0;height:48px;display:flex;align-items:center;justify-content:space-between;padding:0 12px;background:linear-gradient(90deg,#ffffff,#f8fafc);border-bottom:1px solid #e5e7eb;z-index:10}
      .brand{font:600 14px/1 -apple-system,Segoe UI,Helvetica,Arial;color:#0f172a}
      .nav a{color:#0f172a;text-decoration:none;margin-left:12px;padding:6px 10px;border-radius:6px;border:1px solid #d1d5db;background:#f8fafc}
      .nav a:hover{border-color:#94a3b8}
      .wrap{margin-top:48px}
    </style>
  </head>
  <body>
    <div class="topbar">
      <div class="brand">Pulse Server API</div>
      <div class="nav">
        <a href="/openapi" target="_blank">OpenAPI YAML</a>
        <a href="/docs/redoc">Redoc</a>
        <a href="/docs/index.html" title="gin-swagger 原生页面（启用 -tags swagger）">Swagger (original)</a>
      </div>
    </div>
    <div class="wrap">
      <div id="swagger-ui"></div>
    </div>
    <script src="` + jsBundle + `" crossorigin></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis],
        layout: 'BaseLayout'
      })
    </script>
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
