// Command servex-example is a runnable REST API demonstrating routing,
// route groups, built-in middleware, and the event bus, grounded on
// goxpress's examples/rest_api and examples/nested_groups.
package main

import (
	"log"
	"strconv"

	"github.com/Judeadeniji/servex"
)

// User is an in-memory resource for the demo CRUD API.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

var users = []User{
	{ID: 1, Name: "Alice", Email: "alice@example.com"},
	{ID: 2, Name: "Bob", Email: "bob@example.com"},
}
var nextID = 3

func main() {
	app := servex.New(servex.WithEnv(servex.Env{"APP_NAME": "servex-example"}))

	app.Use(servex.RequestID())
	app.Use(servex.Logger())
	app.Use(servex.CORS(servex.CORSConfig{AllowAllOrigins: true}))

	app.Events().On(servex.EventServerResponse, func(rc servex.RequestContext, payload interface{}) {
		// demo subscriber; real applications might forward this to metrics.
	})

	api := app.Group("/api")
	api.GET("/users", listUsers)
	api.GET("/users/:id", getUser)
	api.POST("/users", createUser)
	api.PUT("/users/:id", updateUser)
	api.DELETE("/users/:id", deleteUser)

	admin := api.Group("/admin")
	admin.Use(requireAdminRole)
	admin.DELETE("/users/:id", deleteUser)

	app.UseError(func(err error, c *servex.Context) {
		log.Printf("request error for %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	})

	app.Listen(":8080", func() {
		println("servex-example running at http://localhost:8080")
	})
}

func listUsers(c *servex.Context) {
	c.JSON(200, map[string]interface{}{"users": users})
}

func getUser(c *servex.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(400, map[string]string{"error": "invalid id"})
		return
	}
	for _, u := range users {
		if u.ID == id {
			c.JSON(200, u)
			return
		}
	}
	c.JSON(404, map[string]string{"error": "user not found"})
}

func createUser(c *servex.Context) {
	var in User
	if err := c.BindJSON(&in); err != nil {
		c.JSON(400, map[string]string{"error": "invalid body"})
		return
	}
	in.ID = nextID
	nextID++
	users = append(users, in)
	c.JSON(201, in)
}

func updateUser(c *servex.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(400, map[string]string{"error": "invalid id"})
		return
	}
	var in User
	if err := c.BindJSON(&in); err != nil {
		c.JSON(400, map[string]string{"error": "invalid body"})
		return
	}
	for i, u := range users {
		if u.ID == id {
			in.ID = id
			users[i] = in
			c.JSON(200, in)
			return
		}
	}
	c.JSON(404, map[string]string{"error": "user not found"})
}

func deleteUser(c *servex.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(400, map[string]string{"error": "invalid id"})
		return
	}
	for i, u := range users {
		if u.ID == id {
			users = append(users[:i], users[i+1:]...)
			c.JSON(200, map[string]string{"message": "user deleted"})
			return
		}
	}
	c.JSON(404, map[string]string{"error": "user not found"})
}

func requireAdminRole(c *servex.Context) {
	if c.Request.Header.Get("X-Role") != "admin" {
		panic(servex.NewHttpException(403, "admin role required"))
	}
	c.Next()
}
