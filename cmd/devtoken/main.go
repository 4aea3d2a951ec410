// Command devtoken mints access tokens for local development against a
// server sharing the same JWT_SIGNING_KEY.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"parity/internal/access"
	jwttoken "parity/internal/jwt_token"
	"parity/internal/platform/config"
)

func main() {
	log.SetFlags(0)
	var (
		userID     = flag.String("user", uuid.NewString(), "user id")
		email      = flag.String("email", "", "user email")
		role       = flag.String("role", string(access.RoleHRManager), "admin, hr_manager or employee")
		companyID  = flag.String("company", "", "company id (required)")
		employeeID = flag.String("employee", "", "employee id, for employee-role tokens")
		ttl        = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	cfg, err := config.Load(context.Background())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if _, err := access.ParseRole(*role); err != nil {
		log.Fatal(err)
	}

	sub := jwttoken.Subject{Email: *email, Role: *role}
	if sub.UserID, err = uuid.Parse(*userID); err != nil {
		log.Fatalf("invalid -user: %v", err)
	}
	if sub.CompanyID, err = uuid.Parse(*companyID); err != nil {
		log.Fatalf("invalid or missing -company: %v", err)
	}
	if *employeeID != "" {
		if sub.EmployeeID, err = uuid.Parse(*employeeID); err != nil {
			log.Fatalf("invalid -employee: %v", err)
		}
	}

	token, err := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience).
		GenerateAccessToken(sub, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
