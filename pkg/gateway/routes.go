package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log/level"

	"github.com/sre-norns/skald/pkg/skald"
	"github.com/sre-norns/skald/pkg/trust"
)

var ErrUnsupportedMediaType = fmt.Errorf("unsupported content type request")

const (
	responseMarshalKey = "responseMarshal"
	searchQueryKey     = "searchQuery"
	resourceIdKey      = "resourceId"
	trustContextKey    = "trustContext"
)

func filterFlags(content string) string {
	for i, char := range content {
		if char == ' ' || char == ';' {
			return content[:i]
		}
	}
	return content
}

func selectAcceptedType(header http.Header) []string {
	accepts := header.Values("Accept")
	result := make([]string, 0, len(accepts))
	for _, a := range accepts {
		result = append(result, filterFlags(a))
	}

	return result
}

type responseHandler func(code int, obj any)

func replyWithAcceptedType(c *gin.Context) (responseHandler, error) {
	for _, contentType := range selectAcceptedType(c.Request.Header) {
		switch contentType {
		case "", "*/*", gin.MIMEJSON:
			return c.JSON, nil
		case gin.MIMEYAML, "text/yaml", "application/yaml", "text/x-yaml":
			return c.YAML, nil
		case gin.MIMEXML, gin.MIMEXML2:
			return c.XML, nil
		}
	}

	return nil, ErrUnsupportedMediaType
}

func marshalResponse(ctx *gin.Context, code int, responseValue any) {
	marshal := ctx.MustGet(responseMarshalKey).(responseHandler)
	marshal(code, responseValue)
}

func contentTypeApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		// select response encoder based on accept-type:
		marshal, err := replyWithAcceptedType(ctx)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, skald.ErrorResponse{
				Code:    string(skald.KindValidation),
				Message: err.Error(),
			})
			return
		}

		ctx.Set(responseMarshalKey, marshal)
		ctx.Next()
	}
}

func searchableApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var searchQuery skald.SearchQuery
		_ = ctx.ShouldBindQuery(&searchQuery)
		ctx.Set(searchQueryKey, searchQuery)
		ctx.Next()
	}
}

func resourceIdApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var resourceRequest skald.ResourceRequest
		if err := ctx.BindUri(&resourceRequest); err != nil {
			ctx.AbortWithStatusJSON(http.StatusNotFound, skald.ErrorResponse{
				Code:    string(skald.KindNotFound),
				Message: "resource not found",
			})
			return
		}

		ctx.Set(resourceIdKey, resourceRequest)
		ctx.Next()
	}
}

func bearerToken(authorization string) string {
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

// trustContextApi derives the trust context for every request. An absent
// or unverifiable credential degrades to anonymous, it never aborts.
func (g *Gateway) trustContextApi() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw := bearerToken(ctx.Request.Header.Get("Authorization"))
		ctx.Set(trustContextKey, g.resolver.Resolve(raw))
		ctx.Next()
	}
}

func requireTrustContext(ctx *gin.Context) trust.Context {
	return ctx.MustGet(trustContextKey).(trust.Context)
}

func requireResourceId(ctx *gin.Context) skald.ResourceID {
	return ctx.MustGet(resourceIdKey).(skald.ResourceRequest).ID
}

func requireSearchQuery(ctx *gin.Context) skald.SearchQuery {
	return ctx.MustGet(searchQueryKey).(skald.SearchQuery)
}

func statusOf(kind skald.ErrorKind) int {
	switch kind {
	case skald.KindNotFound:
		return http.StatusNotFound
	case skald.KindValidation:
		return http.StatusBadRequest
	case skald.KindUnauthenticated:
		return http.StatusUnauthorized
	case skald.KindForbidden:
		return http.StatusForbidden
	case skald.KindConfiguration, skald.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError maps the service error taxonomy onto wire responses.
// Client-class failures carry the service message; 5xx bodies are opaque,
// with full detail going to the operator log only.
func (g *Gateway) abortWithError(ctx *gin.Context, err error) {
	kind := skald.KindOf(err)
	code := statusOf(kind)

	if code >= http.StatusInternalServerError {
		level.Error(g.log).Log("msg", "request failed", "path", ctx.Request.URL.Path, "err", err)

		message := "internal server error"
		if code == http.StatusServiceUnavailable {
			message = "service temporarily unavailable"
		}
		ctx.AbortWithStatusJSON(code, skald.ErrorResponse{Code: string(kind), Message: message})
		return
	}

	message := err.Error()
	var typed *skald.Error
	if errors.As(err, &typed) {
		message = typed.Message
	}

	ctx.AbortWithStatusJSON(code, skald.ErrorResponse{Code: string(kind), Message: message})
}

func (g *Gateway) abortWithBindError(ctx *gin.Context, err error) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, skald.ErrorResponse{
		Code:    string(skald.KindValidation),
		Message: err.Error(),
	})
}

func (g *Gateway) apiRoutes(srv skald.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), g.metrics.requestsApi(), g.trustContextApi())

	v1 := router.Group("api/v1")
	{
		v1.GET("/version", func(ctx *gin.Context) {
			bi, ok := debug.ReadBuildInfo()
			if !ok {
				ctx.JSON(http.StatusOK, gin.H{
					"version": "unknown",
				})
				return
			}

			ctx.JSON(http.StatusOK, gin.H{
				"version":   bi.Main.Version,
				"goVersion": bi.GoVersion,
			})
		})

		//------------
		// Auth API
		//------------
		v1.POST("/auth/login", contentTypeApi(), func(ctx *gin.Context) {
			var entry skald.LoginRequest
			if err := ctx.ShouldBind(&entry); err != nil {
				g.abortWithBindError(ctx, err)
				return
			}

			result, err := srv.Accounts().Login(ctx.Request.Context(), entry)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			ctx.Header("Cache-Control", "no-store")
			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.GET("/auth/me", contentTypeApi(), func(ctx *gin.Context) {
			tc := requireTrustContext(ctx)
			if tc.Anonymous() {
				g.abortWithError(ctx, skald.ErrAuthenticationRequired())
				return
			}

			result, err := srv.Accounts().Get(ctx.Request.Context(), tc, skald.ResourceID(tc.Identity.ID))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		//------------
		// Accounts API
		//------------
		v1.GET("/accounts", searchableApi(), contentTypeApi(), func(ctx *gin.Context) {
			searchQuery := requireSearchQuery(ctx)

			results, err := srv.Accounts().List(ctx.Request.Context(), requireTrustContext(ctx), searchQuery.Pagination)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, results)
		})

		v1.POST("/accounts", contentTypeApi(), func(ctx *gin.Context) {
			var entry skald.CreateAccountRequest
			if err := ctx.ShouldBind(&entry); err != nil {
				g.abortWithBindError(ctx, err)
				return
			}

			result, err := srv.Accounts().Register(ctx.Request.Context(), entry)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			ctx.Header("Location", fmt.Sprintf("%v/%v", ctx.Request.URL.Path, result.Account.ID))
			ctx.Header("Cache-Control", "no-store")
			marshalResponse(ctx, http.StatusCreated, result)
		})

		v1.GET("/accounts/:id", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			result, err := srv.Accounts().Get(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.PUT("/accounts/:id", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			var entry skald.UpdateAccountRequest
			if err := ctx.ShouldBind(&entry); err != nil {
				g.abortWithBindError(ctx, err)
				return
			}

			result, err := srv.Accounts().Update(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx), entry)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.DELETE("/accounts/:id", resourceIdApi(), func(ctx *gin.Context) {
			_, err := srv.Accounts().Delete(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			ctx.Status(http.StatusNoContent)
		})

		v1.GET("/accounts/:id/posts", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			results, err := srv.Posts().ListByAuthor(ctx.Request.Context(), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, results)
		})

		//------------
		// Posts API
		//------------
		v1.GET("/posts", searchableApi(), contentTypeApi(), func(ctx *gin.Context) {
			searchQuery := requireSearchQuery(ctx)
			requestContext := ctx.Request.Context()

			// `search`, `author` and `published` select the list variant
			switch {
			case searchQuery.Search != "":
				results, err := srv.Posts().Search(requestContext, searchQuery.Search)
				if err != nil {
					g.abortWithError(ctx, err)
					return
				}
				marshalResponse(ctx, http.StatusOK, results)

			case searchQuery.Author != "":
				results, err := srv.Posts().ListByAuthor(requestContext, skald.ResourceID(searchQuery.Author))
				if err != nil {
					g.abortWithError(ctx, err)
					return
				}
				marshalResponse(ctx, http.StatusOK, results)

			case searchQuery.Published:
				results, err := srv.Posts().ListPublished(requestContext)
				if err != nil {
					g.abortWithError(ctx, err)
					return
				}
				marshalResponse(ctx, http.StatusOK, results)

			default:
				results, err := srv.Posts().List(requestContext, searchQuery.Pagination)
				if err != nil {
					g.abortWithError(ctx, err)
					return
				}
				marshalResponse(ctx, http.StatusOK, results)
			}
		})

		v1.POST("/posts", contentTypeApi(), func(ctx *gin.Context) {
			var entry skald.CreatePostRequest
			if err := ctx.ShouldBind(&entry); err != nil {
				g.abortWithBindError(ctx, err)
				return
			}

			result, err := srv.Posts().Create(ctx.Request.Context(), requireTrustContext(ctx), entry)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			ctx.Header("Location", fmt.Sprintf("%v/%v", ctx.Request.URL.Path, result.ID))
			marshalResponse(ctx, http.StatusCreated, result)
		})

		v1.GET("/posts/:id", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			result, err := srv.Posts().Get(ctx.Request.Context(), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.GET("/posts/:id/author", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			requestContext := ctx.Request.Context()

			post, err := srv.Posts().Get(requestContext, requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			// Deferred backreference: the owning account is fetched on
			// demand and may be gone
			author, err := srv.Posts().Author(requestContext, post)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}
			if author == nil {
				g.abortWithError(ctx, skald.ErrNotFound("author"))
				return
			}

			marshalResponse(ctx, http.StatusOK, author)
		})

		v1.PUT("/posts/:id", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			var entry skald.UpdatePostRequest
			if err := ctx.ShouldBind(&entry); err != nil {
				g.abortWithBindError(ctx, err)
				return
			}

			result, err := srv.Posts().Update(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx), entry)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.POST("/posts/:id/publish", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			result, err := srv.Posts().Publish(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.DELETE("/posts/:id", resourceIdApi(), func(ctx *gin.Context) {
			_, err := srv.Posts().Delete(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			ctx.Status(http.StatusNoContent)
		})

		//------------
		// Leads API
		//------------
		v1.GET("/leads", searchableApi(), contentTypeApi(), func(ctx *gin.Context) {
			searchQuery := requireSearchQuery(ctx)

			results, err := srv.Leads().List(ctx.Request.Context(), searchQuery.Pagination)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, results)
		})

		v1.POST("/leads", contentTypeApi(), func(ctx *gin.Context) {
			var entry skald.CreateLeadRequest
			if err := ctx.ShouldBind(&entry); err != nil {
				g.abortWithBindError(ctx, err)
				return
			}

			result, err := srv.Leads().Create(ctx.Request.Context(), requireTrustContext(ctx), entry)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			ctx.Header("Location", fmt.Sprintf("%v/%v", ctx.Request.URL.Path, result.ID))
			marshalResponse(ctx, http.StatusCreated, result)
		})

		v1.GET("/leads/:id", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			result, err := srv.Leads().Get(ctx.Request.Context(), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.PUT("/leads/:id", contentTypeApi(), resourceIdApi(), func(ctx *gin.Context) {
			var entry skald.UpdateLeadRequest
			if err := ctx.ShouldBind(&entry); err != nil {
				g.abortWithBindError(ctx, err)
				return
			}

			result, err := srv.Leads().Update(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx), entry)
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			marshalResponse(ctx, http.StatusOK, result)
		})

		v1.DELETE("/leads/:id", resourceIdApi(), func(ctx *gin.Context) {
			_, err := srv.Leads().Delete(ctx.Request.Context(), requireTrustContext(ctx), requireResourceId(ctx))
			if err != nil {
				g.abortWithError(ctx, err)
				return
			}

			ctx.Status(http.StatusNoContent)
		})
	}

	return router
}
